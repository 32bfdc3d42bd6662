// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// pubsub.Metricsとgateway.GuardMetricsを実装する。
type Collector struct {
	operationCost      prometheus.Histogram
	validationRejected prometheus.Counter
	eventsPublished    *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	subscriberGauge    *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operationCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoshare_operation_cost",
			Help:    "検証ガードが算出した操作コストの分布",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		validationRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoshare_validation_rejected_total",
			Help: "実行前検証で拒否された操作の合計数",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoshare_events_published_total",
			Help: "トピック別のpublishされたイベントの合計数",
		}, []string{"topic"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoshare_events_dropped_total",
			Help: "トピック別のバッファ溢れで破棄されたイベントの合計数",
		}, []string{"topic"}),
		subscriberGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "photoshare_subscribers",
			Help: "トピック別の現在の購読者数",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		c.operationCost,
		c.validationRejected,
		c.eventsPublished,
		c.eventsDropped,
		c.subscriberGauge,
	)

	return c
}

// RecordOperationCost は検証済み操作のコストを記録する。
func (c *Collector) RecordOperationCost(cost int) {
	c.operationCost.Observe(float64(cost))
}

// RecordValidationRejected は実行前検証での拒否を記録する。
func (c *Collector) RecordValidationRejected() {
	c.validationRejected.Inc()
}

// RecordEventPublished はイベントのpublishを記録する。
func (c *Collector) RecordEventPublished(topic string) {
	c.eventsPublished.WithLabelValues(topic).Inc()
}

// RecordEventDropped はバッファ溢れによるイベント破棄を記録する。
func (c *Collector) RecordEventDropped(topic string) {
	c.eventsDropped.WithLabelValues(topic).Inc()
}

// RecordSubscribers はトピックの現在の購読者数を記録する。
func (c *Collector) RecordSubscribers(topic string, count int) {
	c.subscriberGauge.WithLabelValues(topic).Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
