package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/photoshare/internal/model"
)

func assertRejected(t *testing.T, err error, wantContains string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationRejected {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidationRejected)
	}
	if !strings.Contains(apiErr.Message, wantContains) {
		t.Errorf("Message = %q, expected to contain %q", apiErr.Message, wantContains)
	}
}

// TestGuard_Depth は深さ上限の境界を検証する。
func TestGuard_Depth(t *testing.T) {
	guard := NewGuard(5, 1000, nil, nil)

	t.Run("深さ5は通過する", func(t *testing.T) {
		// allPhotos(1) > postedBy(2) > postedPhotos(3) > postedBy(4) > name(5)
		query := `query { allPhotos { postedBy { postedPhotos { postedBy { name } } } } }`
		if err := guard.Validate(query); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("深さ6は拒否される", func(t *testing.T) {
		query := `query { allPhotos { postedBy { postedPhotos { postedBy { postedPhotos { name } } } } } }`
		assertRejected(t, guard.Validate(query), "depth 6 exceeds")
	})
}

// TestGuard_Cost はコスト上限の検証。リストフィールドは重み10で数える。
func TestGuard_Cost(t *testing.T) {
	t.Run("安い操作は通過する", func(t *testing.T) {
		guard := NewGuard(5, 1000, nil, nil)
		if err := guard.Validate(`query { totalPhotos totalUsers }`); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ネストしたリストは乗算され拒否される", func(t *testing.T) {
		guard := NewGuard(5, 1000, nil, nil)
		// 内側から: postedPhotos = 10*(1+1) = 20, postedBy = 1+20 = 21,
		// postedPhotos = 10*(1+21) = 220, allUsers = 10*(1+220) = 2210
		query := `query {
			allUsers {
				postedPhotos {
					postedBy { postedPhotos { name } }
				}
			}
		}`
		assertRejected(t, guard.Validate(query), "cost 2210 exceeds")
	})

	t.Run("上限ちょうどは通過する", func(t *testing.T) {
		// allUsers = 10 * (1 + 1) = 20
		guard := NewGuard(5, 20, nil, nil)
		if err := guard.Validate(`query { allUsers { name } }`); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		guard = NewGuard(5, 19, nil, nil)
		assertRejected(t, guard.Validate(`query { allUsers { name } }`), "cost 20 exceeds")
	})
}

// TestGuard_Fragments はフラグメント展開がフィールドと同様に数えられることを検証する。
func TestGuard_Fragments(t *testing.T) {
	guard := NewGuard(5, 1000, nil, nil)

	t.Run("スプレッド経由の深さも数える", func(t *testing.T) {
		query := `
			query { allPhotos { ...photoDetails } }
			fragment photoDetails on Photo {
				postedBy { postedPhotos { postedBy { postedPhotos { name } } } }
			}`
		assertRejected(t, guard.Validate(query), "depth")
	})

	t.Run("循環フラグメントで停止する", func(t *testing.T) {
		query := `
			query { allUsers { ...a } }
			fragment a on User { name ...b }
			fragment b on User { avatar ...a }`
		// 循環は打ち切られ、パニックや無限ループにならない
		if err := guard.Validate(query); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestGuard_IntrospectionExempt はイントロスペクションが検査対象外であることを検証する。
func TestGuard_IntrospectionExempt(t *testing.T) {
	guard := NewGuard(5, 20, nil, nil)

	query := `query {
		__schema {
			types {
				fields {
					type {
						ofType { name kind ofType { name ofType { name } } }
					}
				}
			}
		}
	}`
	if err := guard.Validate(query); err != nil {
		t.Errorf("introspection should be exempt, got: %v", err)
	}
}

// TestGuard_ParseFailure は構文エラーがVALIDATION_REJECTEDになることを検証する。
func TestGuard_ParseFailure(t *testing.T) {
	guard := NewGuard(5, 1000, nil, nil)
	assertRejected(t, guard.Validate(`query { allPhotos {`), "parse")
}
