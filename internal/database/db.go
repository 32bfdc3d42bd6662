// Package database はMongoDBへの接続とインデックス管理を提供する。
package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// UsersCollection はユーザーレコードのコレクション名。
	UsersCollection = "users"
	// PhotosCollection は写真レコードのコレクション名。
	PhotosCollection = "photos"
)

// Open はMongoDBに接続し、デフォルトデータベースのハンドルを返す。
// dbHostはMongoDBの接続URIを指定する（例: "mongodb://localhost:27017/photoshare"）。
// 接続確認のPingまで行う。
func Open(ctx context.Context, dbHost string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dbHost))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(defaultDatabaseName(dbHost))
	return db, nil
}

// EnsureIndexes はコアの不変条件を支えるインデックスを作成する。
// usersコレクションのgithubLoginユニークインデックスにより、
// 1つのGitHubログインに対して高々1レコードであることをストア側で保証する。
// photosコレクションのcreatedインデックスはallPhotos(after)の範囲検索用。
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "githubLogin", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = db.Collection(PhotosCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create photos index: %w", err)
	}

	return nil
}

// defaultDatabaseName は接続URIのパス部分からデータベース名を取り出す。
// URIにデータベース名が含まれない場合は"photoshare"を使う。
func defaultDatabaseName(dbHost string) string {
	u, err := url.Parse(dbHost)
	if err != nil {
		return "photoshare"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "photoshare"
	}
	return name
}
