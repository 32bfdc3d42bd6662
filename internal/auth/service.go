// Package auth はGitHub OAuth交換とbearer資格情報によるアイデンティティ解決を提供する。
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/photoshare/internal/model"
)

// Profile はOAuthプロバイダーから取得したユーザー情報を表す。
type Profile struct {
	Login       string
	Name        string
	AvatarURL   string
	AccessToken string
}

// OAuthProvider はOAuth認可コード交換のインターフェース。
// ログインmutationのときだけ呼ばれる外部コラボレーター。
type OAuthProvider interface {
	// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// TokenFinder はアイデンティティ解決に必要なリポジトリの部分集合。
type TokenFinder interface {
	FindByToken(ctx context.Context, token string) (*model.User, error)
}

// Service はbearer資格情報からセッションのアイデンティティを解決する。
// リクエストごと、およびサブスクリプション接続のハンドシェイクごとに1回呼ばれる。
type Service struct {
	users TokenFinder
}

// NewService はServiceを生成する。
func NewService(users TokenFinder) *Service {
	return &Service{users: users}
}

// ResolveToken はbearer資格情報から認証済みユーザーを解決する。
// 資格情報が空、またはどのユーザーのトークンにも一致しない場合は匿名（nil）を
// 返し、エラーにはしない。認可の失敗判定はアイデンティティを必要とする操作側で行う。
// 副作用なしの読み取り専用ルックアップ。
func (s *Service) ResolveToken(ctx context.Context, credential string) (*model.User, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if token == "" {
		return nil, nil
	}

	user, err := s.users.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bearer credential: %w", err)
	}
	return user, nil
}

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// currentUserContextKey はセッションコンテキストの解決済みユーザーを格納するキー。
var currentUserContextKey = contextKey("current_user")

// WithCurrentUser はコンテキストに解決済みユーザーを注入する。
// userがnilの場合（匿名）も呼んでよい。
func WithCurrentUser(ctx context.Context, user *model.User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, currentUserContextKey, user)
}

// CurrentUser はコンテキストから解決済みユーザーを取得する。
// 匿名セッションの場合はnilを返す。
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(currentUserContextKey).(*model.User)
	return user
}
