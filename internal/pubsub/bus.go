// Package pubsub はプロセス内のトピック別イベントファンアウトを提供する。
//
// Busは起動時に明示的に構築してゲートウェイへ注入するコンポーネントであり、
// パッケージレベルのシングルトンではない。配送はat-most-once・ベストエフォートで、
// 永続化せず、購読者がいないトピックへのpublishは破棄される。
package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// TopicNewUser は新規ユーザー作成シグナルのトピック名。
	TopicNewUser = "new-user"
	// TopicPhotoAdded は写真作成シグナルのトピック名。
	TopicPhotoAdded = "photo-added"
)

// Metrics はファンアウトの観測に必要なインターフェース。
// metricsパッケージのCollectorが実装する。
type Metrics interface {
	RecordEventPublished(topic string)
	RecordEventDropped(topic string)
	RecordSubscribers(topic string, count int)
}

// Bus はトピック別のイベントファンアウトを行う。
// 購読者ごとにバッファ付きチャネルを持ち、遅い購読者がパブリッシャーを
// ブロックしないよう、バッファが溢れた場合はイベントを破棄する。
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]chan interface{}

	buffer  int
	logger  *slog.Logger
	metrics Metrics
}

// NewBus はBusを生成する。bufferは購読者ごとの配送キュー長。
// metricsはnilでもよい。
func NewBus(buffer int, logger *slog.Logger, metrics Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		topics:  make(map[string]map[string]chan interface{}),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe は指定トピックの購読を登録し、配送チャネルを返す。
// ctxがキャンセルされると登録が解除され、チャネルはクローズされる。
// 登録以前にpublishされたイベントは配送されない（バックフィルなし）。
func (b *Bus) Subscribe(ctx context.Context, topic string) <-chan interface{} {
	id := uuid.NewString()
	ch := make(chan interface{}, b.buffer)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]chan interface{})
		b.topics[topic] = subs
	}
	subs[id] = ch
	count := len(subs)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordSubscribers(topic, count)
	}
	b.logger.Info("subscriber registered",
		slog.String("topic", topic),
		slog.String("subscriber_id", id),
		slog.Int("subscribers", count),
	)

	go func() {
		<-ctx.Done()
		b.unsubscribe(topic, id)
	}()

	return ch
}

// Publish は現在登録されている全購読者へpayloadを配送する。
// 配送キューが一杯の購読者へのイベントは破棄する（パブリッシャーは待たない）。
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordEventPublished(topic)
	}

	for id, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			if b.metrics != nil {
				b.metrics.RecordEventDropped(topic)
			}
			b.logger.Warn("event dropped for slow subscriber",
				slog.String("topic", topic),
				slog.String("subscriber_id", id),
			)
		}
	}
}

// unsubscribe は購読登録を解除し、配送チャネルをクローズする。
// close はPublishの送信と同じロックで排他されるため、クローズ後の送信は起きない。
func (b *Bus) unsubscribe(topic, id string) {
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	ch, ok := subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	close(ch)
	count := len(subs)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordSubscribers(topic, count)
	}
	b.logger.Info("subscriber removed",
		slog.String("topic", topic),
		slog.String("subscriber_id", id),
	)
}

// SubscriberCount は指定トピックの現在の購読者数を返す。テストおよびメトリクス用。
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
