package gateway

import (
	"context"
	"log/slog"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
	"github.com/hitoshi/photoshare/internal/photo"
	"github.com/hitoshi/photoshare/internal/pubsub"
	"github.com/hitoshi/photoshare/internal/user"
)

// RootResolver はスキーマのルートリゾルバー。
// ドメインロジックはuser/photoのサービスに委譲する。
type RootResolver struct {
	users  *user.Service
	photos *photo.Service
	bus    *pubsub.Bus
	logger *slog.Logger
}

// NewRootResolver はRootResolverを生成する。
func NewRootResolver(
	users *user.Service,
	photos *photo.Service,
	bus *pubsub.Bus,
	logger *slog.Logger,
) *RootResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RootResolver{users: users, photos: photos, bus: bus, logger: logger}
}

// NewSchema はSDLとルートリゾルバーから実行可能スキーマを構築する。
func NewSchema(r *RootResolver) (*graphql.Schema, error) {
	return graphql.ParseSchema(SchemaString, r, graphql.UseStringDescriptions())
}

// --- Query ---

// Me は現在の認証済みユーザーを返す。未認証の場合はnil。
func (r *RootResolver) Me(ctx context.Context) *UserResolver {
	u := auth.CurrentUser(ctx)
	if u == nil {
		return nil
	}
	return &UserResolver{u: u, root: r}
}

func (r *RootResolver) TotalPhotos(ctx context.Context) (int32, error) {
	n, err := r.photos.TotalPhotos(ctx)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func (r *RootResolver) AllPhotos(ctx context.Context, args struct{ After *DateTime }) ([]*PhotoResolver, error) {
	var after time.Time
	if args.After != nil {
		after = args.After.Time
	}
	ps, err := r.photos.List(ctx, after)
	if err != nil {
		return nil, err
	}
	return r.photoResolvers(ps), nil
}

func (r *RootResolver) TotalUsers(ctx context.Context) (int32, error) {
	n, err := r.users.TotalUsers(ctx)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func (r *RootResolver) AllUsers(ctx context.Context) ([]*UserResolver, error) {
	us, err := r.users.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	return r.userResolvers(us), nil
}

// --- Mutation ---

type postPhotoInput struct {
	Name        string
	Category    string
	Description *string
	File        *Upload
}

func (r *RootResolver) PostPhoto(ctx context.Context, args struct{ Input postPhotoInput }) (*PhotoResolver, error) {
	input := photo.PostInput{Name: args.Input.Name}
	input.Category = model.PhotoCategory(args.Input.Category)
	if args.Input.Description != nil {
		input.Description = *args.Input.Description
	}

	var file *Upload
	if args.Input.File != nil && args.Input.File.File != nil {
		file = args.Input.File
	}

	var p *model.Photo
	var err error
	if file != nil {
		p, err = r.photos.Post(ctx, input, file.File)
	} else {
		p, err = r.photos.Post(ctx, input, nil)
	}
	if err != nil {
		return nil, err
	}
	return &PhotoResolver{p: p, root: r}, nil
}

func (r *RootResolver) GithubAuth(ctx context.Context, args struct{ Code string }) (*AuthPayloadResolver, error) {
	payload, err := r.users.Authenticate(ctx, args.Code)
	if err != nil {
		return nil, err
	}
	return &AuthPayloadResolver{payload: payload, root: r}, nil
}

func (r *RootResolver) AddFakeUsers(ctx context.Context, args struct{ Count int32 }) ([]*UserResolver, error) {
	count := int(args.Count)
	us, err := r.users.AddFakeUsers(ctx, count)
	if err != nil {
		return nil, err
	}
	return r.userResolvers(us), nil
}

func (r *RootResolver) FakeUserAuth(ctx context.Context, args struct{ GithubLogin graphql.ID }) (*AuthPayloadResolver, error) {
	payload, err := r.users.AuthenticateByLogin(ctx, string(args.GithubLogin))
	if err != nil {
		return nil, err
	}
	return &AuthPayloadResolver{payload: payload, root: r}, nil
}

// --- Subscription ---

// NewPhoto は写真作成シグナルを購読する。
// ctxのキャンセルでバスの登録が解除され、返したチャネルもクローズされる。
func (r *RootResolver) NewPhoto(ctx context.Context) (<-chan *PhotoResolver, error) {
	events := r.bus.Subscribe(ctx, pubsub.TopicPhotoAdded)
	out := make(chan *PhotoResolver)

	go func() {
		defer close(out)
		for ev := range events {
			p, ok := ev.(*model.Photo)
			if !ok {
				continue
			}
			select {
			case out <- &PhotoResolver{p: p, root: r}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// NewUser は新規ユーザー作成シグナルを購読する。
func (r *RootResolver) NewUser(ctx context.Context) (<-chan *UserResolver, error) {
	events := r.bus.Subscribe(ctx, pubsub.TopicNewUser)
	out := make(chan *UserResolver)

	go func() {
		defer close(out)
		for ev := range events {
			u, ok := ev.(*model.User)
			if !ok {
				continue
			}
			select {
			case out <- &UserResolver{u: u, root: r}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RootResolver) photoResolvers(ps []*model.Photo) []*PhotoResolver {
	resolvers := make([]*PhotoResolver, len(ps))
	for i, p := range ps {
		resolvers[i] = &PhotoResolver{p: p, root: r}
	}
	return resolvers
}

func (r *RootResolver) userResolvers(us []*model.User) []*UserResolver {
	resolvers := make([]*UserResolver, len(us))
	for i, u := range us {
		resolvers[i] = &UserResolver{u: u, root: r}
	}
	return resolvers
}

// --- 型リゾルバー ---

// UserResolver はUser型のフィールドを解決する。
type UserResolver struct {
	u    *model.User
	root *RootResolver
}

func (r *UserResolver) GithubLogin() graphql.ID {
	return graphql.ID(r.u.GithubLogin)
}

func (r *UserResolver) Name() *string {
	if r.u.Name == "" {
		return nil
	}
	return &r.u.Name
}

func (r *UserResolver) Avatar() *string {
	if r.u.Avatar == "" {
		return nil
	}
	return &r.u.Avatar
}

func (r *UserResolver) PostedPhotos(ctx context.Context) ([]*PhotoResolver, error) {
	ps, err := r.root.photos.ListByOwner(ctx, r.u.GithubLogin)
	if err != nil {
		return nil, err
	}
	return r.root.photoResolvers(ps), nil
}

// PhotoResolver はPhoto型のフィールドを解決する。
type PhotoResolver struct {
	p    *model.Photo
	root *RootResolver
}

func (r *PhotoResolver) ID() graphql.ID {
	return graphql.ID(r.p.ID)
}

// Url はベースURLから配信URLを組み立てる。URLはレコードに保存しない。
func (r *PhotoResolver) URL() string {
	return r.root.photos.URL(r.p.ID)
}

func (r *PhotoResolver) Name() string {
	return r.p.Name
}

func (r *PhotoResolver) Description() *string {
	if r.p.Description == "" {
		return nil
	}
	return &r.p.Description
}

func (r *PhotoResolver) Category() string {
	return string(r.p.Category)
}

// PostedBy は投稿者を解決する。ディレクトリにレコードがない場合はNOT_FOUND。
func (r *PhotoResolver) PostedBy(ctx context.Context) (*UserResolver, error) {
	u, err := r.root.users.FindByLogin(ctx, r.p.UserLogin)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(r.p.UserLogin)
	}
	return &UserResolver{u: u, root: r.root}, nil
}

func (r *PhotoResolver) Created() DateTime {
	return DateTime{r.p.Created}
}

// AuthPayloadResolver はAuthPayload型のフィールドを解決する。
type AuthPayloadResolver struct {
	payload *user.AuthPayload
	root    *RootResolver
}

func (r *AuthPayloadResolver) Token() string {
	return r.payload.Token
}

func (r *AuthPayloadResolver) User() *UserResolver {
	return &UserResolver{u: r.payload.User, root: r.root}
}
