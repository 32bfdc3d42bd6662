package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/photoshare/internal/model"
)

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection("users")}
}

// userDoc はusersコレクションのドキュメント表現。
type userDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	GithubLogin string             `bson:"githubLogin"`
	Name        string             `bson:"name"`
	Avatar      string             `bson:"avatar"`
	GithubToken string             `bson:"githubToken"`
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:          d.ID.Hex(),
		GithubLogin: d.GithubLogin,
		Name:        d.Name,
		Avatar:      d.Avatar,
		GithubToken: d.GithubToken,
	}
}

func userToDoc(u *model.User) *userDoc {
	return &userDoc{
		GithubLogin: u.GithubLogin,
		Name:        u.Name,
		Avatar:      u.Avatar,
		GithubToken: u.GithubToken,
	}
}

// FindByToken は保存済みアクセストークンでユーザーを検索する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByToken(ctx context.Context, token string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"githubToken": token})
}

// FindByLogin はGithubLoginでユーザーを検索する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByLogin(ctx context.Context, githubLogin string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"githubLogin": githubLogin})
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toModel(), nil
}

// Insert は新規ユーザーを作成し、採番されたIDを返す。
func (r *MongoUserRepo) Insert(ctx context.Context, user *model.User) (string, error) {
	res, err := r.coll.InsertOne(ctx, userToDoc(user))
	if err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	user.ID = oid.Hex()
	return user.ID, nil
}

// ReplaceByLogin は既存ユーザーのプロフィールとトークンを上書きする。
func (r *MongoUserRepo) ReplaceByLogin(ctx context.Context, user *model.User) error {
	res, err := r.coll.ReplaceOne(ctx,
		bson.M{"githubLogin": user.GithubLogin},
		userToDoc(user),
	)
	if err != nil {
		return fmt.Errorf("failed to replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no user found with githubLogin %q", user.GithubLogin)
	}
	return nil
}

// InsertMany は複数ユーザーを一括挿入する。
func (r *MongoUserRepo) InsertMany(ctx context.Context, users []*model.User) error {
	if len(users) == 0 {
		return nil
	}

	docs := make([]interface{}, len(users))
	for i, u := range users {
		docs[i] = userToDoc(u)
	}

	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert users: %w", err)
	}
	return nil
}

// ListLatest は直近に挿入されたn件を挿入順で返す。
// ObjectIDは時系列で単調増加するため、_id降順でn件取得して反転する。
func (r *MongoUserRepo) ListLatest(ctx context.Context, n int) ([]*model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(n))

	users, err := r.findAll(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	// 挿入順に戻す
	for i, j := 0, len(users)-1; i < j; i, j = i+1, j-1 {
		users[i], users[j] = users[j], users[i]
	}
	return users, nil
}

// ListAll は全ユーザーを返す。
func (r *MongoUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	return r.findAll(ctx, bson.M{}, options.Find())
}

func (r *MongoUserRepo) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.User, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cur.Close(ctx)

	var users []*model.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Count はユーザーの総数を返す。
func (r *MongoUserRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
