package resilience

import (
	"sync"
	"time"

	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// BreakerState enumerates circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker is a per-dependency circuit breaker. It is shared by every caller
// of that dependency and synchronizes internally; the hot path is a single
// short critical section.
//
// Transitions: closed -> open after FailureThreshold consecutive transient
// failures; open -> half-open once Cooldown has elapsed, admitting exactly
// one probe; half-open -> closed on probe success, back to open on failure.
type Breaker struct {
	dependency string
	threshold  int
	cooldown   time.Duration

	mu             sync.Mutex
	state          BreakerState
	failures       int
	probeInFlight  bool
	lastTransition time.Time

	now func() time.Time
}

// NewBreaker builds a closed breaker for the named dependency.
func NewBreaker(dependency string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		dependency: dependency,
		threshold:  threshold,
		cooldown:   cooldown,
		state:      StateClosed,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. While open it fails fast with a
// circuit-open error until the cooldown elapses, at which point a single
// probe call is admitted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastTransition) < b.cooldown {
			return util.NewCircuitOpen(b.dependency)
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return util.NewCircuitOpen(b.dependency)
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker after a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a transient failure toward opening the circuit. A
// failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(next BreakerState) {
	b.state = next
	b.lastTransition = b.now()
	if next == StateClosed {
		b.failures = 0
	}
}
