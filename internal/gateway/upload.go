package gateway

import (
	"fmt"
	"io"
)

// Upload はmultipartリクエストで送られた写真バイナリを表すスカラー。
// HTTPハンドラーがmultipartのファイルパートを変数へ差し込み、
// graph-gophersがUnmarshalGraphQL経由で入力へ束縛する。
type Upload struct {
	File     io.Reader
	Filename string
	Size     int64
}

// ImplementsGraphQLType はgraph-gophersのスカラー登録用インターフェースの実装。
func (Upload) ImplementsGraphQLType(name string) bool {
	return name == "Upload"
}

// UnmarshalGraphQL は変数に差し込まれたUpload値を取り出す。
func (u *Upload) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case Upload:
		*u = v
		return nil
	case *Upload:
		*u = *v
		return nil
	default:
		return fmt.Errorf("unsupported Upload input type %T", input)
	}
}
