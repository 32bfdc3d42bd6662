// Package photo は写真カタログを提供する。
// 認証済みユーザーによる投稿、バイナリの保存、時刻カーソルでの一覧を含む。
package photo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
	"github.com/hitoshi/photoshare/internal/pubsub"
	"github.com/hitoshi/photoshare/internal/repository"
	"github.com/hitoshi/photoshare/internal/security"
	"github.com/hitoshi/photoshare/internal/storage"
)

// PostInput は写真投稿の入力。投稿者と投稿時刻は含まない。
// どちらもサーバー側で決定される。
type PostInput struct {
	Name        string
	Description string
	Category    model.PhotoCategory
}

// Service は写真カタログのビジネスロジックを提供する。
type Service struct {
	photos    repository.PhotoRepository
	store     storage.PhotoStore
	sanitizer security.TextSanitizerService
	bus       *pubsub.Bus
	baseURL   string
	logger    *slog.Logger

	// now はテストで時刻を固定するために差し替え可能にしている
	now func() time.Time
}

// NewService はServiceを生成する。baseURLは写真URLの組み立てに使う。
func NewService(
	photos repository.PhotoRepository,
	store storage.PhotoStore,
	sanitizer security.TextSanitizerService,
	bus *pubsub.Bus,
	baseURL string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		photos:    photos,
		store:     store,
		sanitizer: sanitizer,
		bus:       bus,
		baseURL:   baseURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Post は認証済みユーザーとして写真を投稿する。
//
// fileがnilでない場合、バイナリをレコード挿入より先に保存する。
// 保存が失敗した場合はレコードを作成せずUPLOAD_FAILEDで失敗させる。
// レコードの挿入が成功した後にのみphoto-addedイベントをpublishする。
func (s *Service) Post(ctx context.Context, input PostInput, file io.Reader) (*model.Photo, error) {
	// 1. 投稿者は認証済みセッションから決定する。クライアント入力は信用しない。
	current := auth.CurrentUser(ctx)
	if current == nil {
		return nil, model.NewUnauthenticatedError()
	}

	category := input.Category
	if category == "" {
		category = model.CategoryPortrait
	}
	if !model.ValidCategory(category) {
		return nil, model.NewValidationRejectedError(
			fmt.Sprintf("invalid photo category %q", category),
		)
	}

	p := &model.Photo{
		ID:          s.photos.NewID(),
		Name:        s.sanitizer.Sanitize(input.Name),
		Description: s.sanitizer.Sanitize(input.Description),
		Category:    category,
		UserLogin:   current.GithubLogin,
		Created:     s.now(),
	}

	// 2. バイナリを先に保存する。失敗した投稿のレコードを残さないため。
	if file != nil {
		if err := s.store.Save(p.ID, file); err != nil {
			s.logger.Error("failed to store photo binary",
				slog.String("photo_id", p.ID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewUploadFailedError()
		}
	}

	// 3. レコードを挿入し、成功後にイベントをpublishする
	if err := s.photos.Insert(ctx, p); err != nil {
		s.logger.Error("failed to insert photo", slog.String("error", err.Error()))
		return nil, model.NewPersistenceError("insert photo")
	}
	s.bus.Publish(pubsub.TopicPhotoAdded, p)

	s.logger.Info("photo posted",
		slog.String("photo_id", p.ID),
		slog.String("github_login", p.UserLogin),
		slog.String("category", string(p.Category)),
	)

	return p, nil
}

// List はcreatedがafterより後の写真をcreated昇順で返す。
// afterがゼロ値の場合は全件を返す。
func (s *Service) List(ctx context.Context, after time.Time) ([]*model.Photo, error) {
	ps, err := s.photos.ListAfter(ctx, after)
	if err != nil {
		return nil, model.NewPersistenceError("list photos")
	}
	return ps, nil
}

// ListByOwner は指定されたGithubLoginのユーザーが投稿した写真を返す。
// User.postedPhotosの解決に使う。
func (s *Service) ListByOwner(ctx context.Context, githubLogin string) ([]*model.Photo, error) {
	ps, err := s.photos.ListByOwner(ctx, githubLogin)
	if err != nil {
		return nil, model.NewPersistenceError("list photos")
	}
	return ps, nil
}

// TotalPhotos は写真の総数を返す。
func (s *Service) TotalPhotos(ctx context.Context) (int64, error) {
	n, err := s.photos.Count(ctx)
	if err != nil {
		return 0, model.NewPersistenceError("count photos")
	}
	return n, nil
}

// URL は写真IDから配信URLを組み立てる。
func (s *Service) URL(id string) string {
	return fmt.Sprintf("%s/img/%s.jpg", s.baseURL, id)
}
