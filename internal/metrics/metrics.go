// Package metrics exposes Prometheus counters for the relay. Collectors are
// registered against an injectable Registerer so tests can use a private
// registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Post kind labels for the received counter.
const (
	KindText      = "text"
	KindPhoto     = "photo"
	KindTextPhoto = "text_photo"
)

// Failure stage labels for the failure counter.
const (
	StageTransfer     = "transfer"
	StagePublishText  = "publish_text"
	StagePublishMedia = "publish_media"
	StagePanic        = "panic"
)

// newRelayCounter creates a counter in the standard tg2mastodon/relay namespace.
func newRelayCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tg2mastodon",
		Subsystem: "relay",
		Name:      name,
		Help:      help,
	})
}

// newRelayCounterVec creates a labelled counter in the standard namespace.
func newRelayCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tg2mastodon",
		Subsystem: "relay",
		Name:      name,
		Help:      help,
	}, labels)
}

// Relay tracks forwarding statistics for the bridge.
type Relay struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	postsReceived   *prometheus.CounterVec
	postsForwarded  prometheus.Counter
	forwardFailures *prometheus.CounterVec
	publishSeconds  *prometheus.HistogramVec
	mediaBytes      prometheus.Histogram
	pollCycles      prometheus.Counter
	pollErrors      prometheus.Counter
}

// NewRelay creates the relay metrics set. A nil registerer falls back to the
// Prometheus default registry.
func NewRelay(registerer prometheus.Registerer) *Relay {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Relay{
		registerer:      registerer,
		postsReceived:   newRelayCounterVec("posts_received_total", "Channel posts received from the source, by content kind", []string{"kind"}),
		postsForwarded:  newRelayCounter("posts_forwarded_total", "Channel posts fully forwarded to the destination"),
		forwardFailures: newRelayCounterVec("forward_failures_total", "Forwarding failures, by pipeline stage", []string{"stage"}),
		publishSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tg2mastodon",
			Subsystem: "relay",
			Name:      "publish_duration_seconds",
			Help:      "Latency of destination publish calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		mediaBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tg2mastodon",
			Subsystem: "relay",
			Name:      "media_download_bytes",
			Help:      "Size of downloaded media files",
			Buckets:   []float64{16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20, 50 << 20},
		}),
		pollCycles: newRelayCounter("poll_cycles_total", "Completed getUpdates poll cycles"),
		pollErrors: newRelayCounter("poll_errors_total", "Failed getUpdates poll cycles"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Relay) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.postsReceived,
		m.postsForwarded,
		m.forwardFailures,
		m.publishSeconds,
		m.mediaBytes,
		m.pollCycles,
		m.pollErrors,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Relay) RecordPostReceived(kind string) {
	m.postsReceived.WithLabelValues(kind).Inc()
}

func (m *Relay) RecordPostForwarded() {
	m.postsForwarded.Inc()
}

func (m *Relay) RecordForwardFailure(stage string) {
	m.forwardFailures.WithLabelValues(stage).Inc()
}

func (m *Relay) RecordPublish(op string, elapsed time.Duration) {
	m.publishSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Relay) RecordMediaDownload(size int64) {
	m.mediaBytes.Observe(float64(size))
}

func (m *Relay) RecordPollCycle() {
	m.pollCycles.Inc()
}

func (m *Relay) RecordPollError() {
	m.pollErrors.Inc()
}

// Serve exposes the default registry on addr under /metrics until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
