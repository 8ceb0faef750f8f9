package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRelay(t *testing.T) *Relay {
	t.Helper()
	m := NewRelay(prometheus.NewRegistry())
	if err := m.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	return m
}

func TestRelay_Counters(t *testing.T) {
	m := newTestRelay(t)

	m.RecordPostReceived(KindText)
	m.RecordPostReceived(KindText)
	m.RecordPostReceived(KindPhoto)
	m.RecordPostForwarded()
	m.RecordForwardFailure(StageTransfer)
	m.RecordPollCycle()
	m.RecordPollError()

	if got := testutil.ToFloat64(m.postsReceived.WithLabelValues(KindText)); got != 2 {
		t.Fatalf("expected 2 text posts, got %v", got)
	}
	if got := testutil.ToFloat64(m.postsReceived.WithLabelValues(KindPhoto)); got != 1 {
		t.Fatalf("expected 1 photo post, got %v", got)
	}
	if got := testutil.ToFloat64(m.postsForwarded); got != 1 {
		t.Fatalf("expected 1 forwarded, got %v", got)
	}
	if got := testutil.ToFloat64(m.forwardFailures.WithLabelValues(StageTransfer)); got != 1 {
		t.Fatalf("expected 1 transfer failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.pollCycles); got != 1 {
		t.Fatalf("expected 1 poll cycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.pollErrors); got != 1 {
		t.Fatalf("expected 1 poll error, got %v", got)
	}
}

func TestRelay_Histograms(t *testing.T) {
	m := newTestRelay(t)

	m.RecordPublish("status", 120*time.Millisecond)
	m.RecordPublish("media", 2*time.Second)
	m.RecordMediaDownload(512 << 10)

	if got := testutil.CollectAndCount(m.publishSeconds); got != 2 {
		t.Fatalf("expected 2 publish series, got %d", got)
	}
	if got := testutil.CollectAndCount(m.mediaBytes); got != 1 {
		t.Fatalf("expected 1 media series, got %d", got)
	}
}

func TestRelay_RegisterTwice(t *testing.T) {
	m := NewRelay(prometheus.NewRegistry())
	if err := m.Register(); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(); err != nil {
		t.Fatalf("second register should be a no-op: %v", err)
	}
}

func TestRelay_SharedRegistryTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewRelay(reg)
	if err := a.Register(); err != nil {
		t.Fatalf("register a: %v", err)
	}

	// A second set against the same registry hits AlreadyRegisteredError,
	// which Register treats as success.
	b := NewRelay(reg)
	if err := b.Register(); err != nil {
		t.Fatalf("register b: %v", err)
	}
}
