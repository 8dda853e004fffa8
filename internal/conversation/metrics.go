// ABOUTME: Prometheus instrumentation for the conversation engine
// ABOUTME: All methods are nil-safe so the engine runs without a registry

package conversation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "coven_chat"

// Result labels.
const (
	resultOK        = "ok"
	resultFailed    = "failed"
	resultStale     = "stale"
	resultApplied   = "applied"
	resultIgnored   = "ignored"
	resultMalformed = "malformed"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	sends        *prometheus.CounterVec
	sendDuration prometheus.Histogram
	reactions    *prometheus.CounterVec
	events       *prometheus.CounterVec
	switches     prometheus.Counter
	pending      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sends_total",
			Help:      "Optimistic sends by outcome.",
		}, []string{"result"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "send_duration_seconds",
			Help:      "Time from optimistic insert to server confirmation or rollback.",
			Buckets:   prometheus.DefBuckets,
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reactions_total",
			Help:      "Reaction changes by intent and outcome.",
		}, []string{"intent", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Realtime events by kind and outcome.",
		}, []string{"kind", "result"}),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_switches_total",
			Help:      "Conversation selections and deselections.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_operations",
			Help:      "Sends and reaction changes awaiting a server response.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.sends, m.sendDuration, m.reactions, m.events, m.switches, m.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) sendResolved(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
	m.sendDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) reactionResolved(intent ReactionIntent, result string) {
	if m == nil {
		return
	}
	m.reactions.WithLabelValues(string(intent), result).Inc()
}

func (m *Metrics) event(kind, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) sessionSwitched() {
	if m == nil {
		return
	}
	m.switches.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
