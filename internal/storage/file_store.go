// Package storage は写真バイナリのローカルファイルシステム保存を提供する。
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PhotoStore は写真バイナリの保存先のインターフェースを定義する。
type PhotoStore interface {
	// Save はidに対応するファイルへrの内容を書き込む。
	// 書き込みが途中で失敗した場合、部分的なファイルは残さない。
	Save(id string, r io.Reader) error
	// Path はidに対応するファイルのパスを返す。存在確認は行わない。
	Path(id string) string
}

// fileStore はPhotoStoreのローカルディスク実装。
// ファイルは {dir}/{id}.jpg に保存される。
type fileStore struct {
	dir string
}

// NewFileStore はdir以下に保存するPhotoStoreを生成する。
// ディレクトリが存在しない場合は作成する。
func NewFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

// Save はPhotoStore.Saveの実装。
func (s *fileStore) Save(id string, r io.Reader) error {
	path := s.Path(id)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create photo file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close photo file: %w", err)
	}

	return nil
}

// Path はPhotoStore.Pathの実装。
func (s *fileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jpg")
}
