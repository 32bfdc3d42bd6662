// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
)

// TokenResolver はbearer資格情報からユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type TokenResolver interface {
	ResolveToken(ctx context.Context, credential string) (*model.User, error)
}

// NewIdentityMiddleware はAuthorizationヘッダーからアイデンティティを解決し、
// リクエストコンテキストへ格納するミドルウェアを返す。
//
// ヘッダーがない、またはどのユーザーにも一致しない場合も拒否はしない。
// 匿名のまま通し、認可の判定はアイデンティティを必要とする操作側が行う。
// 解決処理自体の失敗（ストア障害等）のみ503を返す。
func NewIdentityMiddleware(resolver TokenResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := r.Header.Get("Authorization")
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}

			u, err := resolver.ResolveToken(r.Context(), credential)
			if err != nil {
				logger.Error("failed to resolve identity", slog.String("error", err.Error()))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if u == nil {
				// 一致しないトークンは匿名扱い
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithCurrentUser(r.Context(), u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
