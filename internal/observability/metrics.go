// Package observability provides Prometheus instrumentation and the
// per-turn LatencyTracker used throughout the call-handling critical path.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls         prometheus.Gauge
	CallEvents          *prometheus.CounterVec
	ResponseTier        *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	CircuitState        *prometheus.GaugeVec
	BroadcastDrops      *prometheus.CounterVec
	TurnStageLatency    *prometheus.HistogramVec
	QualityScore        prometheus.Histogram
	turnStageWindow     *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently in progress.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by status.",
		}, []string{"status"}),
		ResponseTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_tier_total",
			Help:      "Responses served by tier (quick|cached|llm).",
		}, []string{"tier"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and error kind.",
		}, []string{"provider", "kind"}),
		CircuitState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state by upstream (0=closed 1=open 2=half_open).",
		}, []string{"upstream"}),
		BroadcastDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_drops_total",
			Help:      "Broadcast messages dropped due to a full subscriber queue.",
		}, []string{"reason"}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Turn-stage latency in milliseconds.",
			Buckets:   []float64{20, 50, 100, 150, 250, 400, 700, 1200, 2000, 3000, 5000},
		}, []string{"stage"}),
		QualityScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_quality_score",
			Help:      "Per-turn quality score (0-100).",
			Buckets:   []float64{40, 50, 60, 70, 75, 80, 85, 90, 95, 100},
		}),
		turnStageWindow: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.turnStageWindow.Observe(stage, ms)
}

func (m *Metrics) ObserveCallEvent(status string) {
	if m == nil || m.CallEvents == nil {
		return
	}
	m.CallEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveResponseTier(tier string) {
	if m == nil || m.ResponseTier == nil {
		return
	}
	m.ResponseTier.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveProviderError(provider, kind string) {
	if m == nil || m.ProviderErrors == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) SetCircuitState(upstream string, state int) {
	if m == nil || m.CircuitState == nil {
		return
	}
	m.CircuitState.WithLabelValues(upstream).Set(float64(state))
}

func (m *Metrics) ObserveBroadcastDrop(reason string) {
	if m == nil || m.BroadcastDrops == nil {
		return
	}
	m.BroadcastDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveQualityScore(score float64) {
	if m == nil || m.QualityScore == nil {
		return
	}
	m.QualityScore.Observe(score)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil || m.turnStageWindow == nil {
		return TurnStageSnapshot{}
	}
	return m.turnStageWindow.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil || m.turnStageWindow == nil {
		return
	}
	m.turnStageWindow.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// LogEvent emits a single-line structured log event, matching the
// teacher's stdlib-log-only ambient logging choice (see DESIGN.md).
func LogEvent(kind string, kv ...any) {
	line := "event=" + kind
	for i := 0; i+1 < len(kv); i += 2 {
		line += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	log.Println(line)
}
