// Package handler はHTTPのルーティングと周辺エンドポイントを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/photoshare/internal/gateway"
	"github.com/hitoshi/photoshare/internal/metrics"
	"github.com/hitoshi/photoshare/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// GraphQLエンドポイント
	GraphQLHandler *gateway.Handler
	SocketHandler  *gateway.SocketHandler

	// ミドルウェア依存
	TokenResolver     middleware.TokenResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 写真バイナリの配信ディレクトリ
	PhotoDir string

	// Prometheusスクレイプ
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Logging → Identity → RateLimit
//
// /graphqlはPOSTとWebSocketハンドシェイクを同一パスで受ける。
// WebSocket接続のアイデンティティはconnection_initペイロードで運ばれるため、
// アップグレードリクエストはIdentityミドルウェアを素通りしてよい。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	// ヘルスチェックとスクレイプはアイデンティティ解決の外に置く
	r.Get("/health", healthHandler)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Get("/", welcomeHandler)
	r.Get("/playground", playgroundHandler)

	// 写真バイナリの配信
	fileServer := http.StripPrefix("/img/", http.FileServer(http.Dir(deps.PhotoDir)))
	r.Get("/img/*", fileServer.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.TokenResolver, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
			if gateway.IsWebSocketUpgrade(r) {
				deps.SocketHandler.ServeHTTP(w, r)
				return
			}
			deps.GraphQLHandler.ServeHTTP(w, r)
		})
	})

	return r
}

// healthHandler はロードバランサー向けの死活確認に応答する。
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// welcomeHandler はAPIルートの案内を返す。
func welcomeHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to the PhotoShare API"))
}
