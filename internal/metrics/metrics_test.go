package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/photoshare/internal/pubsub"
)

var _ pubsub.Metrics = (*Collector)(nil)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

// TestCollector_EventCounters はイベント関連カウンタの増加を検証する。
func TestCollector_EventCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEventPublished("photo-added")
	c.RecordEventPublished("photo-added")
	c.RecordEventDropped("photo-added")
	c.RecordSubscribers("photo-added", 3)

	if got := counterValue(t, reg, "photoshare_events_published_total"); got != 2 {
		t.Errorf("events_published = %v, want 2", got)
	}
	if got := counterValue(t, reg, "photoshare_events_dropped_total"); got != 1 {
		t.Errorf("events_dropped = %v, want 1", got)
	}
	if got := counterValue(t, reg, "photoshare_subscribers"); got != 3 {
		t.Errorf("subscribers = %v, want 3", got)
	}
}

// TestCollector_ValidationMetrics は検証ガード関連メトリクスを検証する。
func TestCollector_ValidationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperationCost(42)
	c.RecordValidationRejected()

	if got := counterValue(t, reg, "photoshare_validation_rejected_total"); got != 1 {
		t.Errorf("validation_rejected = %v, want 1", got)
	}
}

// TestHandler_Scrape は/metricsのスクレイプ出力を検証する。
func TestHandler_Scrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordEventPublished("new-user")

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "photoshare_events_published_total") {
		t.Error("scrape output does not contain photoshare_events_published_total")
	}
}
