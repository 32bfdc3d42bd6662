// Package fake はrandomuser.me APIから合成プロフィールを取得するクライアントを提供する。
// addFakeUsers mutationのシード用で、取得失敗は呼び出し元の操作全体を失敗させる。
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photoshare/internal/model"
)

const defaultEndpoint = "https://randomuser.me/api/"

// Client はrandomuser.me APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// randomUserResponse はrandomuser.me APIのレスポンス。
type randomUserResponse struct {
	Results []struct {
		Login struct {
			Username string `json:"username"`
			SHA1     string `json:"sha1"`
		} `json:"login"`
		Name struct {
			First string `json:"first"`
			Last  string `json:"last"`
		} `json:"name"`
		Picture struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"picture"`
	} `json:"results"`
}

// FetchProfiles はcount件の合成プロフィールを取得し、Userレコードに変換して返す。
// usernameがGithubLogin、login.sha1がアクセストークンとして使われる。
func (c *Client) FetchProfiles(ctx context.Context, count int) ([]*model.User, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive: %d", count)
	}

	url := fmt.Sprintf("%s?results=%d", c.endpoint, count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("randomuser request failed",
			slog.String("error", err.Error()),
			slog.Int("count", count),
		)
		return nil, fmt.Errorf("randomuser request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("randomuser returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read randomuser response: %w", err)
	}

	var parsed randomUserResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse randomuser response: %w", err)
	}

	users := make([]*model.User, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		users = append(users, &model.User{
			GithubLogin: r.Login.Username,
			Name:        fmt.Sprintf("%s %s", r.Name.First, r.Name.Last),
			Avatar:      r.Picture.Thumbnail,
			GithubToken: r.Login.SHA1,
		})
	}
	return users, nil
}
