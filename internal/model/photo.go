package model

import "time"

// PhotoCategory は写真のカテゴリを表す。GraphQLのenumと1対1で対応する。
type PhotoCategory string

const (
	CategorySelfie    PhotoCategory = "SELFIE"
	CategoryPortrait  PhotoCategory = "PORTRAIT"
	CategoryAction    PhotoCategory = "ACTION"
	CategoryLandscape PhotoCategory = "LANDSCAPE"
	CategoryGraphic   PhotoCategory = "GRAPHIC"
)

// ValidCategory はカテゴリが定義済みのenum値であるかを返す。
func ValidCategory(c PhotoCategory) bool {
	switch c {
	case CategorySelfie, CategoryPortrait, CategoryAction, CategoryLandscape, CategoryGraphic:
		return true
	}
	return false
}

// Photo は投稿された写真を表す。作成後は不変で、削除もされない。
type Photo struct {
	ID          string
	Name        string
	Description string
	Category    PhotoCategory
	// UserLogin は投稿者のGithubLogin。クライアント入力ではなく
	// 認証済みセッションのアイデンティティから必ず設定される。
	UserLogin string
	// Created はゲートウェイが投稿時刻として採番する。クライアントからは受け取らない。
	Created time.Time
}
