package gateway

import (
	"sync"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
)

// BreakerSnapshot is a point-in-time copy of breaker state.
type BreakerSnapshot struct {
	State        domain.BreakerState `json:"state"`
	FailureCount int                 `json:"failure_count"`
	LastFailure  time.Time           `json:"last_failure"`
	LastError    string              `json:"last_error,omitempty"`
}

// Breaker is a consecutive-failure circuit breaker. OPEN blocks attempts
// until ResetTimeout has elapsed since the last failure, after which a single
// HALF_OPEN probe is let through.
type Breaker struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// OnTransition is called outside the lock whenever the state changes.
	OnTransition func(from, to domain.BreakerState, snap BreakerSnapshot)

	now func() time.Time

	mu          sync.Mutex
	state       domain.BreakerState
	failures    int
	lastFailure time.Time
	lastErr     string
	probing     bool
}

// NewBreaker creates a CLOSED breaker. A nil now uses time.Now.
func NewBreaker(threshold int, resetTimeout time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		FailureThreshold: threshold,
		ResetTimeout:     resetTimeout,
		now:              now,
		state:            domain.BreakerClosed,
	}
}

// CanAttempt reports whether a call may go out now. In HALF_OPEN it admits
// exactly one probe until that probe is recorded.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	from := b.state
	allowed := false
	switch b.state {
	case domain.BreakerClosed:
		allowed = true
	case domain.BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.ResetTimeout {
			b.state = domain.BreakerHalfOpen
			b.probing = true
			allowed = true
		}
	case domain.BreakerHalfOpen:
		if !b.probing {
			b.probing = true
			allowed = true
		}
	}
	to, snap := b.state, b.snapshotLocked()
	b.mu.Unlock()

	b.notify(from, to, snap)
	return allowed
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.state = domain.BreakerClosed
	b.failures = 0
	b.probing = false
	b.lastErr = ""
	to, snap := b.state, b.snapshotLocked()
	b.mu.Unlock()

	b.notify(from, to, snap)
}

// RecordFailure counts a failed attempt. A failed probe reopens the breaker
// and restarts the reset timeout.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.lastFailure = b.now()
	if err != nil {
		b.lastErr = err.Error()
	}
	switch b.state {
	case domain.BreakerHalfOpen:
		b.state = domain.BreakerOpen
	case domain.BreakerClosed:
		if b.failures >= b.FailureThreshold {
			b.state = domain.BreakerOpen
		}
	}
	b.probing = false
	to, snap := b.state, b.snapshotLocked()
	b.mu.Unlock()

	b.notify(from, to, snap)
}

// State returns the current state without admitting a probe.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Snapshot returns a copy of the breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() BreakerSnapshot {
	return BreakerSnapshot{
		State:        b.state,
		FailureCount: b.failures,
		LastFailure:  b.lastFailure,
		LastError:    b.lastErr,
	}
}

func (b *Breaker) notify(from, to domain.BreakerState, snap BreakerSnapshot) {
	if from != to && b.OnTransition != nil {
		b.OnTransition(from, to, snap)
	}
}
