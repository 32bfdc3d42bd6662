package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/photoshare/internal/model"
)

// MongoPhotoRepo はMongoDBを使用した写真リポジトリ。
type MongoPhotoRepo struct {
	coll *mongo.Collection
}

// NewMongoPhotoRepo はMongoPhotoRepoを生成する。
func NewMongoPhotoRepo(db *mongo.Database) *MongoPhotoRepo {
	return &MongoPhotoRepo{coll: db.Collection("photos")}
}

// photoDoc はphotosコレクションのドキュメント表現。
type photoDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Category    string             `bson:"category"`
	UserLogin   string             `bson:"userID"`
	Created     time.Time          `bson:"created"`
}

func (d *photoDoc) toModel() *model.Photo {
	return &model.Photo{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Category:    model.PhotoCategory(d.Category),
		UserLogin:   d.UserLogin,
		Created:     d.Created,
	}
}

// NewID はストレージ識別子を事前採番する。
func (r *MongoPhotoRepo) NewID() string {
	return primitive.NewObjectID().Hex()
}

// Insert は写真レコードを作成する。photo.IDが設定されていればそのIDで挿入する。
func (r *MongoPhotoRepo) Insert(ctx context.Context, photo *model.Photo) error {
	oid := primitive.NewObjectID()
	if photo.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(photo.ID)
		if err != nil {
			return fmt.Errorf("invalid photo id %q: %w", photo.ID, err)
		}
		oid = parsed
	}

	doc := &photoDoc{
		ID:          oid,
		Name:        photo.Name,
		Description: photo.Description,
		Category:    string(photo.Category),
		UserLogin:   photo.UserLogin,
		Created:     photo.Created,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	photo.ID = oid.Hex()
	return nil
}

// ListAfter はcreatedがafterより後の写真をcreated昇順で返す。
func (r *MongoPhotoRepo) ListAfter(ctx context.Context, after time.Time) ([]*model.Photo, error) {
	filter := bson.M{}
	if !after.IsZero() {
		filter["created"] = bson.M{"$gt": after}
	}
	return r.findAll(ctx, filter)
}

// ListByOwner は指定GithubLoginのユーザーが投稿した写真をcreated昇順で返す。
func (r *MongoPhotoRepo) ListByOwner(ctx context.Context, githubLogin string) ([]*model.Photo, error) {
	return r.findAll(ctx, bson.M{"userID": githubLogin})
}

func (r *MongoPhotoRepo) findAll(ctx context.Context, filter bson.M) ([]*model.Photo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer cur.Close(ctx)

	var photos []*model.Photo
	for cur.Next(ctx) {
		var doc photoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode photo: %w", err)
		}
		photos = append(photos, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photos: %w", err)
	}
	return photos, nil
}

// Count は写真の総数を返す。
func (r *MongoPhotoRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return n, nil
}
