package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/metrics"
	"github.com/ricirt/pubsub-outbox/internal/outbox"
)

func TestMetrics_OutboxHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	o := outbox.New(outbox.WithHooks(m.OutboxHooks()))

	_, _ = o.Enqueue([]byte("a"), 1, int(domain.KindPublish), 0)
	_, _ = o.Enqueue([]byte("b"), 2, int(domain.KindPublish), 0)
	_ = o.DeleteExact(1, int(domain.KindPublish))
	o.DeleteExpired(100, 10)

	if got := testutil.ToFloat64(m.Inserted.WithLabelValues("publish")); got != 2 {
		t.Fatalf("expected 2 inserts, got %v", got)
	}
	if got := testutil.ToFloat64(m.Removed.WithLabelValues("acked")); got != 1 {
		t.Fatalf("expected 1 acked removal, got %v", got)
	}
	if got := testutil.ToFloat64(m.Removed.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expected 1 expired removal, got %v", got)
	}
}

func TestMetrics_DispatchHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	onSent, onFailed := m.DispatchHooks()

	onSent(domain.KindPublish, 20*time.Millisecond)
	onFailed(domain.KindPubrel)
	onFailed(domain.KindPubrel)

	if got := testutil.ToFloat64(m.SendFailures.WithLabelValues("pubrel")); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
	if got := testutil.CollectAndCount(m.SendLatency); got != 1 {
		t.Fatalf("expected 1 latency series, got %d", got)
	}
}

func TestMetrics_TrackStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.TrackStats(func() domain.Stats {
		return domain.Stats{Items: 3, Pending: 1, Bytes: 42, MaxBytes: 100}
	})

	expected := `
# HELP outbox_bytes Payload bytes currently held in the outbox.
# TYPE outbox_bytes gauge
outbox_bytes 42
# HELP outbox_pending_items Messages sent and awaiting acknowledgment.
# TYPE outbox_pending_items gauge
outbox_pending_items 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "outbox_bytes", "outbox_pending_items"); err != nil {
		t.Fatal(err)
	}
}
