package gateway

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/hitoshi/photoshare/internal/model"
)

// 既定の検証上限
const (
	DefaultMaxDepth = 5
	DefaultMaxCost  = 1000
)

// listFieldWeight はリストを返すフィールドの重み。
// コストモデル: フィールドのコスト = 重み × (1 + 子フィールドの合計コスト)。
// 既定の重みは1で、1件のフィールド解決がコスト1に相当する。
var listFieldWeight = map[string]int{
	"allPhotos":    10,
	"allUsers":     10,
	"postedPhotos": 10,
	"addFakeUsers": 10,
}

// Guard は操作を実行前に静的検証する。
// 深さまたはコストが上限を超えた操作はリゾルバーに到達する前に拒否される。
type Guard struct {
	maxDepth int
	maxCost  int
	logger   *slog.Logger
	metrics  GuardMetrics
}

// GuardMetrics は検証結果の観測に必要なインターフェース。
type GuardMetrics interface {
	RecordOperationCost(cost int)
	RecordValidationRejected()
}

// NewGuard はGuardを生成する。metricsはnilでもよい。
func NewGuard(maxDepth, maxCost int, logger *slog.Logger, metrics GuardMetrics) *Guard {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{maxDepth: maxDepth, maxCost: maxCost, logger: logger, metrics: metrics}
}

// Validate は操作ドキュメントを解析し、深さとコストの上限を検査する。
// 上限超過および構文エラーはVALIDATION_REJECTEDとして返す。
// イントロスペクション（__で始まるフィールド）のサブツリーは検査対象外。
func (g *Guard) Validate(query string) error {
	doc, err := parser.ParseQuery(&ast.Source{Name: "operation", Input: query})
	if err != nil {
		g.reject()
		return model.NewValidationRejectedError(fmt.Sprintf("failed to parse operation: %v", err))
	}

	fragments := make(map[string]*ast.FragmentDefinition, len(doc.Fragments))
	for _, f := range doc.Fragments {
		fragments[f.Name] = f
	}

	for _, op := range doc.Operations {
		w := walker{fragments: fragments, visiting: make(map[string]bool)}
		depth, cost := w.measure(op.SelectionSet)

		if g.metrics != nil {
			g.metrics.RecordOperationCost(cost)
		}
		g.logger.Info("operation validated",
			slog.String("operation", op.Name),
			slog.Int("depth", depth),
			slog.Int("cost", cost),
		)

		if depth > g.maxDepth {
			g.reject()
			return model.NewValidationRejectedError(
				fmt.Sprintf("operation depth %d exceeds the maximum of %d", depth, g.maxDepth),
			)
		}
		if cost > g.maxCost {
			g.reject()
			return model.NewValidationRejectedError(
				fmt.Sprintf("operation cost %d exceeds the maximum of %d", cost, g.maxCost),
			)
		}
	}

	return nil
}

func (g *Guard) reject() {
	if g.metrics != nil {
		g.metrics.RecordValidationRejected()
	}
}

// walker は選択集合を辿って深さとコストを測る。
// visitingでフラグメントの循環参照を打ち切る。
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	visiting  map[string]bool
}

// measure は選択集合の最大深さと合計コストを返す。
// フラグメント展開は深さに寄与しない（展開先のフィールドだけが数えられる）。
func (w *walker) measure(set ast.SelectionSet) (depth, cost int) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if strings.HasPrefix(s.Name, "__") {
				continue
			}
			childDepth, childCost := w.measure(s.SelectionSet)
			weight := 1
			if lw, ok := listFieldWeight[s.Name]; ok {
				weight = lw
			}
			if d := 1 + childDepth; d > depth {
				depth = d
			}
			cost += weight * (1 + childCost)
		case *ast.FragmentSpread:
			frag, ok := w.fragments[s.Name]
			if !ok || w.visiting[s.Name] {
				continue
			}
			w.visiting[s.Name] = true
			fragDepth, fragCost := w.measure(frag.SelectionSet)
			w.visiting[s.Name] = false
			if fragDepth > depth {
				depth = fragDepth
			}
			cost += fragCost
		case *ast.InlineFragment:
			fragDepth, fragCost := w.measure(s.SelectionSet)
			if fragDepth > depth {
				depth = fragDepth
			}
			cost += fragCost
		}
	}
	return depth, cost
}
