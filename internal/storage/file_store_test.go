package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

var _ PhotoStore = (*fileStore)(nil)

// TestFileStore_Save は保存したバイナリが{dir}/{id}.jpgに書かれることを検証する。
func TestFileStore_Save(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save("abc123", strings.NewReader("jpeg-bytes")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "abc123.jpg"))
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("content = %q, want %q", string(data), "jpeg-bytes")
	}
}

// TestFileStore_SaveFailure は読み込みエラー時に部分ファイルが残らないことを検証する。
func TestFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := iotest.TimeoutReader(iotest.OneByteReader(strings.NewReader("jpeg-bytes")))
	if err := store.Save("abc123", broken); err == nil {
		t.Fatal("expected error")
	}

	if _, err := os.Stat(filepath.Join(dir, "abc123.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial file should be removed, stat err = %v", err)
	}
}

// TestNewFileStore_CreatesDirectory は保存先ディレクトリが自動作成されることを検証する。
func TestNewFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img", "nested")

	if _, err := NewFileStore(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}
