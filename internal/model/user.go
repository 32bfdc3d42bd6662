// Package model はドメインモデルを定義する。
package model

// User はGitHub OAuthで認証されたサービス利用ユーザーを表す。
// GithubLoginが安定識別子であり、全ユーザーを通して一意
// （usersコレクションにユニークインデックスを張る）。
type User struct {
	ID          string
	GithubLogin string
	Name        string
	Avatar      string
	// GithubToken は以降のリクエストでbearer資格情報として提示される
	// 不透明なアクセストークン。OAuth交換のたびにローテーションされる。
	GithubToken string
}
