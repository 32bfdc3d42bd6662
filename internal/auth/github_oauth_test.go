package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/photoshare/internal/model"
)

func newTestProvider(tokenHandler, userHandler http.HandlerFunc) (*GitHubOAuthProvider, func()) {
	tokenSrv := httptest.NewServer(tokenHandler)
	userSrv := httptest.NewServer(userHandler)

	p := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenSrv.URL,
		UserURL:      userSrv.URL,
	}, nil)

	return p, func() {
		tokenSrv.Close()
		userSrv.Close()
	}
}

// 正常系: 認可コード交換とプロフィール取得が成功することを検証
func TestGitHubExchange_Success(t *testing.T) {
	p, cleanup := newTestProvider(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("token method = %s, want POST", r.Method)
			}
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode token request: %v", err)
			}
			if body["code"] != "abc" {
				t.Errorf("code = %q, want %q", body["code"], "abc")
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-xyz"})
		},
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "token tok-xyz" {
				t.Errorf("Authorization = %q, want %q", got, "token tok-xyz")
			}
			json.NewEncoder(w).Encode(map[string]string{
				"login":      "gPlake",
				"name":       "Glen Plake",
				"avatar_url": "https://example.com/gplake.jpg",
			})
		},
	)
	defer cleanup()

	profile, err := p.Exchange(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.Login != "gPlake" {
		t.Errorf("Login = %q, want %q", profile.Login, "gPlake")
	}
	if profile.AccessToken != "tok-xyz" {
		t.Errorf("AccessToken = %q, want %q", profile.AccessToken, "tok-xyz")
	}
	if profile.Name != "Glen Plake" {
		t.Errorf("Name = %q, want %q", profile.Name, "Glen Plake")
	}
}

// トークンエンドポイントがエラーを返した場合にUPSTREAM_FAILUREになることを検証
func TestGitHubExchange_TokenEndpointError(t *testing.T) {
	p, cleanup := newTestProvider(
		func(w http.ResponseWriter, r *http.Request) {
			// GitHubはエラー時も200で返す
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "bad_verification_code",
				"error_description": "The code passed is incorrect or expired.",
			})
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("user endpoint should not be called")
		},
	)
	defer cleanup()

	_, err := p.Exchange(context.Background(), "bad")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeUpstreamFailure {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUpstreamFailure)
	}
	if apiErr.Message != "The code passed is incorrect or expired." {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

// ユーザーエンドポイントのmessageがそのままエラーメッセージになることを検証
func TestGitHubExchange_UserEndpointMessage(t *testing.T) {
	p, cleanup := newTestProvider(
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-xyz"})
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Bad credentials"})
		},
	)
	defer cleanup()

	_, err := p.Exchange(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Message != "Bad credentials" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "Bad credentials")
	}
}

// 到達不能なエンドポイントでエラーになることを検証
func TestGitHubExchange_Unreachable(t *testing.T) {
	p := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     "http://127.0.0.1:1/token",
		UserURL:      "http://127.0.0.1:1/user",
	}, nil)

	if _, err := p.Exchange(context.Background(), "abc"); err == nil {
		t.Fatal("expected error")
	}
}
