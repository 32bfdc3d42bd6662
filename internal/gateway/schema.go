// Package gateway はGraphQLのクエリ・ミューテーション・サブスクリプション面を提供する。
//
// スキーマの解決はgraph-gophers/graphql-goに委譲し、実行前の深さ・コスト検証、
// HTTP/WebSocketのトランスポート、アイデンティティの伝播をこのパッケージで行う。
package gateway

// SchemaString は公開するGraphQLスキーマの定義。
const SchemaString = `
schema {
	query: Query
	mutation: Mutation
	subscription: Subscription
}

"""
ISO-8601形式の日時を表すスカラー。
"""
scalar DateTime

"""
multipartリクエストで送られる写真バイナリを表すスカラー。
"""
scalar Upload

enum PhotoCategory {
	SELFIE
	PORTRAIT
	ACTION
	LANDSCAPE
	GRAPHIC
}

type User {
	githubLogin: ID!
	name: String
	avatar: String
	postedPhotos: [Photo!]!
}

type Photo {
	id: ID!
	url: String!
	name: String!
	description: String
	category: PhotoCategory!
	postedBy: User!
	created: DateTime!
}

input PostPhotoInput {
	name: String!
	category: PhotoCategory = PORTRAIT
	description: String
	file: Upload
}

type AuthPayload {
	token: String!
	user: User!
}

type Query {
	"""
	現在の認証済みユーザー。未認証の場合はnull。
	"""
	me: User
	totalPhotos: Int!
	"""
	afterより後に投稿された写真をcreated昇順で返す。省略時は全件。
	"""
	allPhotos(after: DateTime): [Photo!]!
	totalUsers: Int!
	allUsers: [User!]!
}

type Mutation {
	"""
	認証済みユーザーとして写真を投稿する。
	"""
	postPhoto(input: PostPhotoInput!): Photo!
	"""
	GitHubの認可コードを交換してユーザーをupsertし、トークンを返す。
	"""
	githubAuth(code: String!): AuthPayload!
	"""
	合成ユーザーをcount件シードする。
	"""
	addFakeUsers(count: Int = 1): [User!]!
	"""
	シード済みアイデンティティ向けの資格情報なし認証ショートカット。
	"""
	fakeUserAuth(githubLogin: ID!): AuthPayload!
}

type Subscription {
	newPhoto: Photo!
	newUser: User!
}
`
