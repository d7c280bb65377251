// Package breaker provides a minimal, thread-safe circuit breaker for
// upstream calls.
//
// States:
//   - Closed: calls flow normally; consecutive failures are counted.
//   - Open: calls are refused with errs.ErrCircuitOpen; after OpenTimeout the
//     breaker moves to HalfOpen.
//   - HalfOpen: a limited number of probe calls go through; if all succeed
//     the breaker closes, any failure reopens it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daffatgi02/valo-apps-backend/errs"
)

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int

	// IsFailure decides which errors count against the upstream. Nil counts
	// upstream outages only, so a rejected token does not trip the breaker.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker's lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig trips after five consecutive outages and probes again after
// thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        30 * time.Second,
		HalfOpenMaxSuccess: 1,
	}
}

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name string
	cfg  Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// New creates a named Breaker. The name identifies the upstream group in
// errors and state-change notifications.
func New(name string, cfg Config) *Breaker {
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return errors.Is(err, errs.ErrUpstreamUnavailable) }
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a call is allowed through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.successes < b.cfg.HalfOpenMaxSuccess
	default: // Open
		return false
	}
}

// Record feeds the outcome of a call into the breaker.
func (b *Breaker) Record(err error) {
	if err != nil && b.cfg.IsFailure(err) {
		b.OnFailure()
		return
	}
	b.OnSuccess()
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.transition(Closed)
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// Do runs fn through b. When the breaker refuses the call fn is not run and
// the error matches both errs.ErrCircuitOpen and errs.ErrUpstreamUnavailable.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if !b.Allow() {
		var zero T
		return zero, fmt.Errorf("%s: %w", b.name, errors.Join(errs.ErrCircuitOpen, errs.ErrUpstreamUnavailable))
	}
	v, err := fn(ctx)
	b.Record(err)
	return v, err
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(HalfOpen)
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.transition(Open)
	b.openedAt = b.now()
	b.successes = 0
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}
