// Package circuitbreaker guards calls to the administrative calendar. While the
// calendar keeps failing, reads of scheduling events fail fast instead of
// queueing behind timeouts, and one probe is let through after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a breaker.
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
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned without calling the guarded function.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds breaker settings. Zero values fall back to the defaults.
type Config struct {
	Name string

	// FailureThreshold consecutive failures open a closed breaker (default 5).
	FailureThreshold int

	// SuccessThreshold consecutive probe successes close it again (default 2).
	SuccessThreshold int

	// CoolDown is how long the breaker stays open before probing (default 30s).
	CoolDown time.Duration

	// MaxProbes bounds concurrent calls while half-open (default 1).
	MaxProbes int

	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool

	Now func() time.Time
}

// Option configures a breaker.
type Option func(*Config)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(c *Config) { c.FailureThreshold = n }
}

// WithSuccessThreshold sets how many probe successes close it.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) { c.SuccessThreshold = n }
}

// WithCoolDown sets how long the breaker stays open.
func WithCoolDown(d time.Duration) Option {
	return func(c *Config) { c.CoolDown = d }
}

// WithMaxProbes bounds concurrent half-open calls.
func WithMaxProbes(n int) Option {
	return func(c *Config) { c.MaxProbes = n }
}

// WithIsFailure sets which errors count as failures.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithClock replaces the time source used for the cool-down.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

func (c *Config) normalize() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 30 * time.Second
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is a consistent view of a breaker.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	TotalFailures       int

	// RetryAt is when an open breaker lets the next probe through.
	RetryAt time.Time
}

// CircuitBreaker counts outcomes per generation. Every state change starts a
// new generation, so a late result from an older generation is ignored.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    int // consecutive, current generation
	successes   int // consecutive, current generation
	totalFailed int
	probes      int
	openUntil   time.Time
}

// New creates a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := Config{Name: name}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()
	return &CircuitBreaker{cfg: cfg}
}

// CalendarBreaker returns the breaker for the scheduling-event API.
// A caller cancelling its own context is not a calendar failure.
func CalendarBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("calendar-api",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCoolDown(time.Minute),
		WithOnStateChange(onStateChange),
		WithIsFailure(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
}

// Execute calls fn unless the breaker rejects the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(gen, err)
	return err
}

// Check returns an error describing an open breaker, or nil. It does not
// take a probe slot.
func (cb *CircuitBreaker) Check() error {
	s := cb.Snapshot()
	if s.State != StateOpen {
		return nil
	}
	return fmt.Errorf("%w: %s retries at %s", ErrCircuitOpen, s.Name, s.RetryAt.Format(time.RFC3339))
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Before(cb.openUntil) {
			return cb.generation, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.MaxProbes {
			return cb.generation, ErrTooManyRequests
		}
		cb.probes++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	if cb.state == StateHalfOpen {
		cb.probes--
	}

	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))
	if !failed {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.totalFailed++
	cb.successes = 0
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if to == StateOpen {
		cb.openUntil = cb.cfg.Now().Add(cb.cfg.CoolDown)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker past its cool-down is
// still reported open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := Snapshot{
		Name:                cb.cfg.Name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		TotalFailures:       cb.totalFailed,
	}
	if cb.state == StateOpen {
		s.RetryAt = cb.openUntil
	}
	return s
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}
