// Package user はユーザーディレクトリを提供する。
// GitHub OAuthによるupsert認証、合成ユーザーの一括シード、シード済み
// アイデンティティ向けの認証ショートカットを含む。
package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
	"github.com/hitoshi/photoshare/internal/pubsub"
	"github.com/hitoshi/photoshare/internal/repository"
)

// ProfileFetcher は合成プロフィール生成の外部コラボレーターのインターフェース。
type ProfileFetcher interface {
	FetchProfiles(ctx context.Context, count int) ([]*model.User, error)
}

// AuthPayload は認証mutationの結果。tokenは以降のリクエストの
// bearer資格情報としてクライアントが提示する。
type AuthPayload struct {
	User  *model.User
	Token string
}

// Service はユーザーディレクトリのビジネスロジックを提供する。
type Service struct {
	oauth    auth.OAuthProvider
	profiles ProfileFetcher
	users    repository.UserRepository
	bus      *pubsub.Bus
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	oauth auth.OAuthProvider,
	profiles ProfileFetcher,
	users repository.UserRepository,
	bus *pubsub.Bus,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oauth:    oauth,
		profiles: profiles,
		users:    users,
		bus:      bus,
		logger:   logger,
	}
}

// Authenticate は認可コードをGitHubで交換し、ユーザーをupsertする。
//
// 既存ログインの場合はプロフィールとトークンを上書きし、作成シグナルは出さない。
// 新規ログインの場合はレコードを挿入し、採番済みIDを含むレコードを載せた
// new-userイベントをちょうど1回publishする。publishは挿入の成功後にのみ行う。
//
// insert/updateの分岐は事前の存在チェックで決まる。同一の新規ログインに対する
// 並行呼び出しとは競合しうるが、この競合は設計上許容して文書化している
// （ストアのユニークインデックスにより二重挿入自体は失敗する）。
func (s *Service) Authenticate(ctx context.Context, code string) (*AuthPayload, error) {
	// 1. GitHubからプロフィールを取得。エラーメッセージが返った場合は
	//    書き込みを一切行わずに操作全体を失敗させる。
	profile, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth exchange failed", slog.String("error", err.Error()))
		return nil, upstreamError(err)
	}

	latest := &model.User{
		GithubLogin: profile.Login,
		Name:        profile.Name,
		Avatar:      profile.AvatarURL,
		GithubToken: profile.AccessToken,
	}

	// 2. 既存レコードの有無で分岐する
	existing, err := s.users.FindByLogin(ctx, profile.Login)
	if err != nil {
		s.logger.Error("failed to look up user", slog.String("error", err.Error()))
		return nil, model.NewPersistenceError("find user")
	}

	if existing != nil {
		// 既存ログイン: 上書き更新、シグナルなし
		latest.ID = existing.ID
		if err := s.users.ReplaceByLogin(ctx, latest); err != nil {
			s.logger.Error("failed to update user", slog.String("error", err.Error()))
			return nil, model.NewPersistenceError("update user")
		}
		s.logger.Info("existing user logged in",
			slog.String("github_login", latest.GithubLogin),
		)
	} else {
		// 新規ログイン: 挿入して作成シグナルをちょうど1回出す
		if _, err := s.users.Insert(ctx, latest); err != nil {
			s.logger.Error("failed to insert user", slog.String("error", err.Error()))
			return nil, model.NewPersistenceError("insert user")
		}
		s.bus.Publish(pubsub.TopicNewUser, latest)
		s.logger.Info("new user created",
			slog.String("github_login", latest.GithubLogin),
			slog.String("user_id", latest.ID),
		)
	}

	return &AuthPayload{User: latest, Token: latest.GithubToken}, nil
}

// AddFakeUsers は合成プロフィールをcount件取得して一括挿入し、
// 挿入されたレコードごとにnew-userイベントを1件publishする。
// 一括挿入はレコードごとのIDを返さないため、直近に挿入されたcount件を
// 読み直して採番済みIDを回収する。
func (s *Service) AddFakeUsers(ctx context.Context, count int) ([]*model.User, error) {
	profiles, err := s.profiles.FetchProfiles(ctx, count)
	if err != nil {
		s.logger.Warn("failed to fetch fake profiles", slog.String("error", err.Error()))
		return nil, upstreamError(err)
	}

	if err := s.users.InsertMany(ctx, profiles); err != nil {
		s.logger.Error("failed to insert fake users", slog.String("error", err.Error()))
		return nil, model.NewPersistenceError("insert users")
	}

	inserted, err := s.users.ListLatest(ctx, count)
	if err != nil {
		s.logger.Error("failed to read back fake users", slog.String("error", err.Error()))
		return nil, model.NewPersistenceError("list users")
	}

	for _, u := range inserted {
		s.bus.Publish(pubsub.TopicNewUser, u)
	}
	s.logger.Info("fake users added", slog.Int("count", len(inserted)))

	return inserted, nil
}

// AuthenticateByLogin はシード済みアイデンティティ向けの資格情報なし認証
// ショートカット。該当ログインが存在しない場合はNOT_FOUNDで失敗する。
// ディレクトリへの書き込みもシグナルのpublishも行わない。
func (s *Service) AuthenticateByLogin(ctx context.Context, githubLogin string) (*AuthPayload, error) {
	u, err := s.users.FindByLogin(ctx, githubLogin)
	if err != nil {
		s.logger.Error("failed to look up user", slog.String("error", err.Error()))
		return nil, model.NewPersistenceError("find user")
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(githubLogin)
	}

	return &AuthPayload{User: u, Token: u.GithubToken}, nil
}

// FindByLogin はGithubLoginでユーザーを検索する。Photo.postedByの解決に使う。
// 見つからない場合はnilを返す。
func (s *Service) FindByLogin(ctx context.Context, githubLogin string) (*model.User, error) {
	u, err := s.users.FindByLogin(ctx, githubLogin)
	if err != nil {
		return nil, model.NewPersistenceError("find user")
	}
	return u, nil
}

// TotalUsers はユーザーの総数を返す。
func (s *Service) TotalUsers(ctx context.Context) (int64, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, model.NewPersistenceError("count users")
	}
	return n, nil
}

// AllUsers は全ユーザーを返す。
func (s *Service) AllUsers(ctx context.Context) ([]*model.User, error) {
	us, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, model.NewPersistenceError("list users")
	}
	return us, nil
}

// upstreamError は外部サービスのエラーをUPSTREAM_FAILUREに正規化する。
// すでにAPIError（GitHubが報告したメッセージ等）の場合はそのまま通す。
func upstreamError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewUpstreamError(err.Error())
}
