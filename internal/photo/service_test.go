package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
	"github.com/hitoshi/photoshare/internal/pubsub"
	"github.com/hitoshi/photoshare/internal/repository"
	"github.com/hitoshi/photoshare/internal/security"
	"github.com/hitoshi/photoshare/internal/storage"
)

// --- モック定義 ---

// memPhotoRepo はテスト用のインメモリPhotoRepository。
type memPhotoRepo struct {
	photos []*model.Photo
	nextID int

	insertErr error
}

func (r *memPhotoRepo) NewID() string {
	r.nextID++
	return fmt.Sprintf("photo-%d", r.nextID)
}

func (r *memPhotoRepo) Insert(_ context.Context, photo *model.Photo) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if photo.ID == "" {
		photo.ID = r.NewID()
	}
	copied := *photo
	r.photos = append(r.photos, &copied)
	return nil
}

func (r *memPhotoRepo) ListAfter(_ context.Context, after time.Time) ([]*model.Photo, error) {
	var result []*model.Photo
	for _, p := range r.photos {
		if after.IsZero() || p.Created.After(after) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *memPhotoRepo) ListByOwner(_ context.Context, githubLogin string) ([]*model.Photo, error) {
	var result []*model.Photo
	for _, p := range r.photos {
		if p.UserLogin == githubLogin {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *memPhotoRepo) Count(_ context.Context) (int64, error) {
	return int64(len(r.photos)), nil
}

type mockStore struct {
	saveFn func(id string, r io.Reader) error
	saved  map[string]string
}

func (m *mockStore) Save(id string, r io.Reader) error {
	if m.saveFn != nil {
		return m.saveFn(id, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.saved == nil {
		m.saved = make(map[string]string)
	}
	m.saved[id] = string(data)
	return nil
}

func (m *mockStore) Path(id string) string {
	return "/tmp/" + id + ".jpg"
}

var _ repository.PhotoRepository = (*memPhotoRepo)(nil)
var _ storage.PhotoStore = (*mockStore)(nil)

func newTestService(repo *memPhotoRepo, store *mockStore, bus *pubsub.Bus) *Service {
	return NewService(repo, store, security.NewTextSanitizer(), bus, "http://localhost:4000", nil)
}

func authedContext(githubLogin string) context.Context {
	return auth.WithCurrentUser(context.Background(), &model.User{
		GithubLogin: githubLogin,
		Name:        "Test User",
	})
}

func collectEvents(t *testing.T, bus *pubsub.Bus, topic string) func() []interface{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := bus.Subscribe(ctx, topic)

	return func() []interface{} {
		var events []interface{}
		for {
			select {
			case ev := <-ch:
				events = append(events, ev)
			case <-time.After(50 * time.Millisecond):
				return events
			}
		}
	}
}

// --- テスト ---

// 認証済みユーザーの投稿で、帰属・時刻採番・イベントが正しいことを検証
func TestPost_Authenticated(t *testing.T) {
	repo := &memPhotoRepo{}
	store := &mockStore{}
	bus := pubsub.NewBus(8, nil, nil)
	events := collectEvents(t, bus, pubsub.TopicPhotoAdded)
	svc := newTestService(repo, store, bus)

	before := time.Now()
	p, err := svc.Post(authedContext("gPlake"), PostInput{
		Name:     "Dropping In",
		Category: model.CategoryAction,
	}, strings.NewReader("jpeg-bytes"))
	after := time.Now()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.UserLogin != "gPlake" {
		t.Errorf("UserLogin = %q, want %q", p.UserLogin, "gPlake")
	}
	if p.ID == "" {
		t.Error("expected assigned id")
	}
	if p.Created.Before(before) || p.Created.After(after) {
		t.Errorf("Created = %v, want within [%v, %v]", p.Created, before, after)
	}
	if store.saved[p.ID] != "jpeg-bytes" {
		t.Errorf("stored binary = %q, want %q", store.saved[p.ID], "jpeg-bytes")
	}

	got := events()
	if len(got) != 1 {
		t.Fatalf("photo-added events = %d, want 1", len(got))
	}
	ev := got[0].(*model.Photo)
	if ev.ID != p.ID {
		t.Errorf("event photo id = %q, want %q", ev.ID, p.ID)
	}
}

// 未認証の投稿がUNAUTHENTICATEDで拒否され、書き込みが起きないことを検証
func TestPost_Unauthenticated(t *testing.T) {
	repo := &memPhotoRepo{}
	bus := pubsub.NewBus(8, nil, nil)
	events := collectEvents(t, bus, pubsub.TopicPhotoAdded)
	svc := newTestService(repo, &mockStore{}, bus)

	_, err := svc.Post(context.Background(), PostInput{Name: "Gnar"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeUnauthenticated {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUnauthenticated)
	}
	if apiErr.Message != "only an authorized user can post a photo" {
		t.Errorf("Message = %q", apiErr.Message)
	}

	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("photo count = %d, want 0", n)
	}
	if got := events(); len(got) != 0 {
		t.Errorf("photo-added events = %d, want 0", len(got))
	}
}

// バイナリ保存の失敗時にレコードもイベントも残らないことを検証
func TestPost_UploadFailure(t *testing.T) {
	repo := &memPhotoRepo{}
	store := &mockStore{
		saveFn: func(_ string, _ io.Reader) error {
			return errors.New("disk full")
		},
	}
	bus := pubsub.NewBus(8, nil, nil)
	events := collectEvents(t, bus, pubsub.TopicPhotoAdded)
	svc := newTestService(repo, store, bus)

	_, err := svc.Post(authedContext("gPlake"), PostInput{Name: "Gnar"}, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeUploadFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUploadFailed)
	}

	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("photo count = %d, want 0", n)
	}
	if got := events(); len(got) != 0 {
		t.Errorf("photo-added events = %d, want 0", len(got))
	}
}

// レコード挿入の失敗時にイベントが出ないことを検証
func TestPost_InsertFailure_NoSignal(t *testing.T) {
	repo := &memPhotoRepo{insertErr: errors.New("write concern error")}
	bus := pubsub.NewBus(8, nil, nil)
	events := collectEvents(t, bus, pubsub.TopicPhotoAdded)
	svc := newTestService(repo, &mockStore{}, bus)

	if _, err := svc.Post(authedContext("gPlake"), PostInput{Name: "Gnar"}, nil); err == nil {
		t.Fatal("expected error")
	}
	if got := events(); len(got) != 0 {
		t.Errorf("photo-added events = %d, want 0", len(got))
	}
}

// カテゴリ未指定はPORTRAIT、未定義カテゴリは拒否されることを検証
func TestPost_Category(t *testing.T) {
	t.Run("デフォルトはPORTRAIT", func(t *testing.T) {
		svc := newTestService(&memPhotoRepo{}, &mockStore{}, pubsub.NewBus(8, nil, nil))
		p, err := svc.Post(authedContext("gPlake"), PostInput{Name: "Gnar"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Category != model.CategoryPortrait {
			t.Errorf("Category = %q, want %q", p.Category, model.CategoryPortrait)
		}
	})

	t.Run("未定義カテゴリは拒否", func(t *testing.T) {
		svc := newTestService(&memPhotoRepo{}, &mockStore{}, pubsub.NewBus(8, nil, nil))
		_, err := svc.Post(authedContext("gPlake"), PostInput{Name: "Gnar", Category: "MACRO"}, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Code != model.ErrCodeValidationRejected {
			t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidationRejected)
		}
	})
}

// 名前と説明からHTMLタグが除去されることを検証
func TestPost_SanitizesMetadata(t *testing.T) {
	svc := newTestService(&memPhotoRepo{}, &mockStore{}, pubsub.NewBus(8, nil, nil))

	p, err := svc.Post(authedContext("gPlake"), PostInput{
		Name:        `Gnar<script>alert(1)</script>`,
		Description: "<strong>25 laps</strong>",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(p.Name, "<script>") {
		t.Errorf("Name still contains markup: %q", p.Name)
	}
	if p.Description != "25 laps" {
		t.Errorf("Description = %q, want %q", p.Description, "25 laps")
	}
}

// afterカーソルより後の写真のみが返ることを検証
func TestList_AfterCursor(t *testing.T) {
	repo := &memPhotoRepo{}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		repo.Insert(context.Background(), &model.Photo{
			Name:    fmt.Sprintf("photo %d", i),
			Created: base.Add(time.Duration(i) * time.Hour),
		})
	}
	svc := newTestService(repo, &mockStore{}, pubsub.NewBus(8, nil, nil))

	got, err := svc.List(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	all, err := svc.List(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}

// 配信URLがbase/img/{id}.jpgのテンプレートに従うことを検証
func TestURL(t *testing.T) {
	svc := newTestService(&memPhotoRepo{}, &mockStore{}, pubsub.NewBus(8, nil, nil))

	got := svc.URL("5a1b2c")
	want := "http://localhost:4000/img/5a1b2c.jpg"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}
