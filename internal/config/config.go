package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DBHost string // MongoDB接続URI

	// OAuth
	GithubClientID     string
	GithubClientSecret string

	// Server
	ServerPort string
	BaseURL    string
	// IdleTimeout はHTTPサーバーのアイドルタイムアウト。
	IdleTimeout time.Duration

	// Upload
	PhotoDir      string // 写真バイナリの保存先ディレクトリ
	MaxUploadSize int64  // multipartアップロードの上限バイト数

	// Rate Limit
	RateLimitGeneral int // 1ユーザーあたりのreq/min

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DBHost = os.Getenv("DB_HOST")
	if cfg.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}

	cfg.GithubClientID = os.Getenv("GITHUB_CLIENT_ID")
	if cfg.GithubClientID == "" {
		missing = append(missing, "GITHUB_CLIENT_ID")
	}

	cfg.GithubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	if cfg.GithubClientSecret == "" {
		missing = append(missing, "GITHUB_CLIENT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "4000")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", 5*time.Second)
	cfg.PhotoDir = getEnvString("PHOTO_DIR", "./img")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 10485760)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
