// Package resilience puts circuit breakers in front of the speech providers.
//
// [TTSProvider] and [Recognizer] wrap a provider with a [CircuitBreaker] so a
// backend that keeps failing is refused at once instead of holding every turn
// until its own timeout expires. A call is attempted at most once; nothing in
// this package retries.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling through while the breaker is
// open, or while every half-open probe slot is taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker mode.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	Name string

	// MaxFailures consecutive failures open a closed breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the time spent open before probing. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax probes must succeed to close again, and at most that many
	// run at once. Default 1.
	HalfOpenMax int

	// IsFailure reports whether err counts against the backend. Errors it
	// rejects are returned untouched and leave the counters alone. Nil counts
	// every error.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after each transition with the lock
	// released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped on every transition; stale outcomes are dropped
	failures int
	openedAt time.Time
	inFlight int
	passed   int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn once if the breaker admits it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(gen, probe, err)
	return err
}

// admit decides whether a call may proceed and reserves a probe slot when
// half-open.
func (cb *CircuitBreaker) admit() (gen uint64, probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return 0, false, ErrCircuitOpen
		}
		change = cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			return 0, false, ErrCircuitOpen
		}
		cb.inFlight++
		return cb.gen, true, nil
	}
	return cb.gen, false, nil
}

// settle books the outcome of a call admitted in generation gen.
func (cb *CircuitBreaker) settle(gen uint64, probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if gen != cb.gen {
		return
	}
	failed := err != nil && cb.cfg.IsFailure(err)
	if probe {
		cb.inFlight--
		switch {
		case failed:
			change = cb.moveTo(StateOpen)
		case err == nil:
			cb.passed++
			if cb.passed >= cb.cfg.HalfOpenMax {
				change = cb.moveTo(StateClosed)
			}
		}
		return
	}
	switch {
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			change = cb.moveTo(StateOpen)
		}
	case err == nil:
		cb.failures = 0
	}
}

// moveTo switches state, clears the counters and returns the notification to
// run once cb.mu is released. Must be called with cb.mu held.
func (cb *CircuitBreaker) moveTo(to State) func() {
	from := cb.state
	cb.state = to
	cb.gen++
	cb.failures, cb.inFlight, cb.passed = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	name := cb.cfg.Name
	hook := cb.cfg.OnStateChange
	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		if hook != nil {
			hook(name, from, to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the switch itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.failures = 0
		cb.mu.Unlock()
		return
	}
	change := cb.moveTo(StateClosed)
	cb.mu.Unlock()
	change()
}
