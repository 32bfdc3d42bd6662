package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/photoshare/internal/model"
)

const (
	defaultGithubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGithubUserURL  = "https://api.github.com/user"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string

	// テスト用にオーバーライド可能なURL
	TokenURL string
	UserURL  string
}

// GitHubOAuthProvider はGitHub OAuthによる認可コード交換とプロフィール取得を提供する。
type GitHubOAuthProvider struct {
	config     GitHubOAuthConfig
	httpClient *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使う。
func NewGitHubOAuthProvider(config GitHubOAuthConfig, httpClient *http.Client) *GitHubOAuthProvider {
	if config.TokenURL == "" {
		config.TokenURL = defaultGithubTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultGithubUserURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubOAuthProvider{config: config, httpClient: httpClient}
}

// githubTokenResponse はGitHubのトークンエンドポイントのレスポンス。
type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// githubUserResponse はGitHubのユーザーエンドポイントのレスポンス。
// GitHubはエラーをmessageフィールドで返す（例: "Bad credentials"）。
type githubUserResponse struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Message   string `json:"message"`
}

// Exchange は認可コードをアクセストークンに交換し、GitHubのプロフィールを取得する。
// GitHub側がエラーメッセージを返した場合はそのメッセージでUPSTREAM_FAILUREを返す。
func (p *GitHubOAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	// 1. 認可コードをアクセストークンに交換
	token, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}

	// 2. アクセストークンでプロフィールを取得
	user, err := p.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	return &Profile{
		Login:       user.Login,
		Name:        user.Name,
		AvatarURL:   user.AvatarURL,
		AccessToken: token,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     p.config.ClientID,
		"client_secret": p.config.ClientSecret,
		"code":          code,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	// GitHubはエラー時も200で{error, error_description}を返す
	if tokenResp.Error != "" {
		msg := tokenResp.ErrorDescription
		if msg == "" {
			msg = tokenResp.Error
		}
		return "", model.NewUpstreamError(msg)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response (status %d)", resp.StatusCode)
	}

	return tokenResp.AccessToken, nil
}

// fetchUser はアクセストークンでGitHubのユーザープロフィールを取得する。
func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "token "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}

	var user githubUserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	// messageがある場合は何らかのエラーが発生している
	if user.Message != "" {
		return nil, model.NewUpstreamError(user.Message)
	}
	if user.Login == "" {
		return nil, fmt.Errorf("empty login in user response (status %d)", resp.StatusCode)
	}

	return &user, nil
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
