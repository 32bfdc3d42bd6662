// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/photoshare/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByToken は保存済みアクセストークンでユーザーを検索する。
	// 見つからない場合はnilを返す（エラーにしない）。
	FindByToken(ctx context.Context, token string) (*model.User, error)

	// FindByLogin はGithubLoginでユーザーを検索する。見つからない場合はnilを返す。
	FindByLogin(ctx context.Context, githubLogin string) (*model.User, error)

	// Insert は新規ユーザーを作成し、採番されたIDを返す。
	Insert(ctx context.Context, user *model.User) (string, error)

	// ReplaceByLogin は既存ユーザーのプロフィールとトークンを上書きする。
	// レコードのIDは維持される。
	ReplaceByLogin(ctx context.Context, user *model.User) error

	// InsertMany は複数ユーザーを一括挿入する。採番されたIDは返さない
	// （呼び出し側がListLatestで回収する）。
	InsertMany(ctx context.Context, users []*model.User) error

	// ListLatest は直近に挿入されたn件を挿入順で返す。
	ListLatest(ctx context.Context, n int) ([]*model.User, error)

	// ListAll は全ユーザーを返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// Count はユーザーの総数を返す。
	Count(ctx context.Context) (int64, error)
}

// PhotoRepository は写真データの永続化インターフェース。
type PhotoRepository interface {
	// NewID はストレージ識別子を事前採番する。バイナリのストリーム書き込みを
	// レコード挿入より先に行うために使う。
	NewID() string

	// Insert は写真レコードを作成する。photo.IDが設定されていればそのIDで
	// 挿入し、空の場合は採番してphoto.IDに書き戻す。
	Insert(ctx context.Context, photo *model.Photo) error

	// ListAfter はcreatedがafterより後の写真をcreated昇順で返す。
	// afterがゼロ値の場合は全件を返す。
	ListAfter(ctx context.Context, after time.Time) ([]*model.Photo, error)

	// ListByOwner は指定GithubLoginのユーザーが投稿した写真をcreated昇順で返す。
	ListByOwner(ctx context.Context, githubLogin string) ([]*model.Photo, error)

	// Count は写真の総数を返す。
	Count(ctx context.Context) (int64, error)
}
