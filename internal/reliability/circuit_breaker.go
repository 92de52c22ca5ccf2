package reliability

import (
	"sync"
	"time"
)

// CircuitState is the closed three-state circuit breaker lifecycle.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips to OPEN after FailureThreshold failures inside
// Window, stays OPEN for Cooldown, then allows exactly one HALF_OPEN probe;
// a probe success closes the breaker, a probe failure reopens it with a
// fresh cooldown. One breaker instance guards one upstream (LLM or TTS).
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	window           time.Duration
	cooldown         time.Duration

	state       CircuitState
	failures    []time.Time
	openedAt    time.Time
	probeInFlight bool

	onStateChange func(CircuitState)
}

func NewCircuitBreaker(failureThreshold int, window, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		window:           window,
		cooldown:         cooldown,
		state:            StateClosed,
	}
}

// OnStateChange registers a callback invoked whenever the breaker's state
// transitions.
func (b *CircuitBreaker) OnStateChange(fn func(CircuitState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed right now, and if so whether
// this call is the single HALF_OPEN probe.
func (b *CircuitBreaker) Allow() (allowed bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cooldown {
			b.setState(StateHalfOpen)
			b.probeInFlight = true
			return true, true
		}
		return false, false
	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true, true
		}
		return false, false
	default:
		return true, false
	}
}

// RecordSuccess clears failure history and, if this was the HALF_OPEN
// probe, closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.setState(StateClosed)
		return
	}
	if b.state == StateOpen {
		b.setState(StateClosed)
	}
}

// RecordFailure appends a failure; if the HALF_OPEN probe failed the
// breaker reopens with a fresh cooldown, otherwise the failure is added to
// the sliding window and trips the breaker once the threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.openedAt = now
		b.failures = nil
		b.setState(StateOpen)
		return
	}

	b.failures = append(b.failures, now)
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept

	if len(b.failures) >= b.failureThreshold && b.state == StateClosed {
		b.openedAt = now
		b.setState(StateOpen)
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) setState(s CircuitState) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onStateChange != nil {
		b.onStateChange(s)
	}
}
