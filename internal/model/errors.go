package model

import "fmt"

// APIError はGraphQLレスポンスのerrorsとして返す統一エラーフォーマットを表す。
// Codeはクライアントが分岐に使える安定値で、extensionsにも載せる。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return e.Message
}

// Extensions はgraph-gophersのResolverErrorインターフェースを実装し、
// GraphQLレスポンスのextensionsフィールドにエラーコードを載せる。
func (e *APIError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code": e.Code,
	}
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
	ErrCodeValidationRejected = "VALIDATION_REJECTED"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
)

// NewUnauthenticatedError は認証されていないリクエストが認証必須の操作を
// 実行しようとした場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthenticated,
		Message: "only an authorized user can post a photo",
	}
}

// NewUserNotFoundError は指定されたGithubLoginのユーザーが存在しない場合の
// エラーを生成する。
func NewUserNotFoundError(githubLogin string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("cannot find user with githubLogin %q", githubLogin),
	}
}

// NewUpstreamError は外部サービス（GitHub API等）がエラーを返した場合の
// エラーを生成する。messageには外部サービスのエラーメッセージをそのまま渡す。
func NewUpstreamError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamFailure,
		Message: message,
	}
}

// NewValidationRejectedError は深さ・コスト上限を超えた操作を
// 実行前に拒否する場合のエラーを生成する。
func NewValidationRejectedError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationRejected,
		Message: reason,
	}
}

// NewPersistenceError はドキュメントストアの操作自体が失敗した場合の
// エラーを生成する。
func NewPersistenceError(op string) *APIError {
	return &APIError{
		Code:    ErrCodePersistenceFailure,
		Message: fmt.Sprintf("storage operation failed: %s", op),
	}
}

// NewUploadFailedError は写真バイナリのストリーム書き込みが失敗した場合の
// エラーを生成する。レコードは書き込まれない。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:    ErrCodeUploadFailed,
		Message: "failed to store the uploaded photo binary",
	}
}
