// Package circuitbreaker guards the sidecar and bank transports: after
// enough consecutive failures the breaker opens and calls fail fast
// until a probe succeeds, so a down collaborator does not tie up every
// queue worker in connection timeouts.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's current mode.
type State string

const (
	// StateClosed allows calls through.
	StateClosed State = "closed"
	// StateOpen fails calls fast until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen allows a limited number of probe calls.
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call without
// attempting it. Callers treat it like any other transient remote
// failure: log and rely on the next poll cycle.
var ErrOpen = errors.New("circuit breaker open")

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeCalls  int

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
}

// New creates a breaker that opens after maxFailures consecutive
// failures and probes again after cooldown.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		probeCalls:  1,
		state:       StateClosed,
	}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err == nil)
	return err
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		fallthrough
	default:
		if b.probes >= b.probeCalls {
			return ErrOpen
		}
		b.probes++
		return nil
	}
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}
