package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LatencyTracker records the marks for a single turn and reports each
// stage's elapsed time (relative to turn start) to Metrics exactly once,
// mirroring how the teacher's orchestrator timestamped
// assistantOutputStartedAt and related marks inline during a turn. persist_done
// is marked from a fire-and-forget background goroutine that outlives
// Finish (spec §4.12: persistence never sits on the critical path), so
// every access is mutex-guarded rather than assumed single-goroutine.
type LatencyTracker struct {
	metrics *Metrics
	start   time.Time

	mu    sync.Mutex
	marks map[string]time.Time
}

// NewLatencyTracker starts tracking a turn beginning now.
func NewLatencyTracker(metrics *Metrics) *LatencyTracker {
	return &LatencyTracker{
		metrics: metrics,
		start:   time.Now(),
		marks:   make(map[string]time.Time, 8),
	}
}

// Mark records the elapsed time since turn start for the named stage and
// reports it to Metrics. Marking the same stage twice is a no-op after the
// first call, matching the "exactly one latency event per turn" invariant.
func (t *LatencyTracker) Mark(stage string) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.marks[stage]; done {
		return 0
	}
	now := time.Now()
	t.marks[stage] = now
	elapsed := now.Sub(t.start)
	if t.metrics != nil {
		t.metrics.ObserveTurnStage(stage, elapsed)
	}
	return elapsed
}

// MarkSpan is Mark plus a same-named event on the span (if any) carried by
// ctx, so one turn's prompt/LLM/TTS/persist timeline shows up alongside the
// Prometheus histograms in a trace viewer. Safe to call with no active span;
// trace.SpanFromContext then returns a no-op span.
func MarkSpan(ctx context.Context, t *LatencyTracker, stage string) time.Duration {
	d := t.Mark(stage)
	trace.SpanFromContext(ctx).AddEvent(stage)
	return d
}

// Finish marks the "total" stage and returns every mark's elapsed duration
// for inclusion in the turn's structured latency event. Marks recorded
// after Finish (persist_done arriving from its background goroutine) still
// reach Metrics via Mark itself; they just won't appear in this snapshot.
func (t *LatencyTracker) Finish() map[string]time.Duration {
	t.Mark("total")
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.marks))
	for stage, at := range t.marks {
		out[stage] = at.Sub(t.start)
	}
	return out
}
