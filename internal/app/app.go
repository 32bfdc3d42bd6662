// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/config"
	"github.com/hitoshi/photoshare/internal/database"
	"github.com/hitoshi/photoshare/internal/fake"
	"github.com/hitoshi/photoshare/internal/gateway"
	"github.com/hitoshi/photoshare/internal/handler"
	"github.com/hitoshi/photoshare/internal/logger"
	"github.com/hitoshi/photoshare/internal/metrics"
	"github.com/hitoshi/photoshare/internal/middleware"
	"github.com/hitoshi/photoshare/internal/photo"
	"github.com/hitoshi/photoshare/internal/pubsub"
	"github.com/hitoshi/photoshare/internal/repository"
	"github.com/hitoshi/photoshare/internal/security"
	"github.com/hitoshi/photoshare/internal/storage"
	"github.com/hitoshi/photoshare/internal/user"
)

// イベントバスの購読者ごとの配送キュー長
const eventBufferSize = 64

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "4000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// ドキュメントストアへの接続を開き、全依存関係をワイヤリングし、
// HTTPサーバーを起動する。SIGINTまたはSIGTERMシグナルを受信すると
// グレースフルシャットダウンを行い、WebSocket上の購読も停止させる。
func runServe(cfg *config.Config) error {
	// shutdownCtx のキャンセルが全WebSocket購読の停止シグナルになる
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	// 1. ドキュメントストア接続
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Open(connectCtx, cfg.DBHost)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Client().Disconnect(context.Background())

	if err := database.EnsureIndexes(connectCtx, db); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewMongoUserRepo(db)
	photoRepo := repository.NewMongoPhotoRepo(db)

	// 3. メトリクスとイベントバスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	bus := pubsub.NewBus(eventBufferSize, slog.Default(), collector)

	// 4. ストレージとセキュリティサービスの初期化
	store, err := storage.NewFileStore(cfg.PhotoDir)
	if err != nil {
		return fmt.Errorf("failed to create photo store: %w", err)
	}
	sanitizer := security.NewTextSanitizer()

	// 5. ドメインサービスの初期化
	oauthProvider := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
	}, &http.Client{Timeout: 10 * time.Second})
	authService := auth.NewService(userRepo)

	fakeClient := fake.NewClient(&http.Client{Timeout: 10 * time.Second}, slog.Default())

	userService := user.NewService(oauthProvider, fakeClient, userRepo, bus, slog.Default())
	photoService := photo.NewService(photoRepo, store, sanitizer, bus, cfg.BaseURL, slog.Default())

	// 6. GraphQLゲートウェイの構築
	schema, err := gateway.NewSchema(gateway.NewRootResolver(userService, photoService, bus, slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to parse graphql schema: %w", err)
	}
	guard := gateway.NewGuard(gateway.DefaultMaxDepth, gateway.DefaultMaxCost, slog.Default(), collector)

	graphqlHandler := gateway.NewHandler(schema, guard, cfg.MaxUploadSize, slog.Default())
	socketHandler := gateway.NewSocketHandler(schema, guard, authService, shutdownCtx, slog.Default())

	// 7. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		Rate:            rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		Burst:           cfg.RateLimitGeneral,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		GraphQLHandler:    graphqlHandler,
		SocketHandler:     socketHandler,
		TokenResolver:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		PhotoDir:          cfg.PhotoDir,
		Gatherer:          registry,
		Logger:            slog.Default(),
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	// WebSocket購読を先に停止してからHTTPサーバーを閉じる
	shutdown()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
