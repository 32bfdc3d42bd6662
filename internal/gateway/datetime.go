package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateTime はGraphQLのDateTimeスカラーを表す。
// 入出力ともにRFC 3339形式の文字列として扱う。
type DateTime struct {
	time.Time
}

// ImplementsGraphQLType はgraph-gophersのスカラー登録用インターフェースの実装。
func (DateTime) ImplementsGraphQLType(name string) bool {
	return name == "DateTime"
}

// UnmarshalGraphQL はクエリ変数・リテラルからDateTimeを復元する。
func (d *DateTime) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case time.Time:
		d.Time = v
		return nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("failed to parse DateTime %q: %w", v, err)
		}
		d.Time = t
		return nil
	default:
		return fmt.Errorf("unsupported DateTime input type %T", input)
	}
}

// MarshalJSON はレスポンスに載せる表現を返す。
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.Format(time.RFC3339))
}
