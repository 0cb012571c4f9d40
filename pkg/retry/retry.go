// Package retry repeats calls to the calendar API and to dependencies that
// may still be starting. Backoff timing comes from cenkalti/backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth another attempt. Do returns the
// original error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type settings struct {
	attempts   int
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	retryIf    func(error) bool
	onRetry    func(attempt int, err error, delay time.Duration)
}

func newSettings(opts []Option) settings {
	s := settings{
		attempts:   3,
		initial:    100 * time.Millisecond,
		max:        30 * time.Second,
		multiplier: 2,
		jitter:     0.1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option adjusts a retry run. Out-of-range values are ignored.
type Option func(*settings)

// WithMaxAttempts counts the first call too.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.initial = d
		}
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.max = d
		}
	}
}

// WithMultiplier sets the growth factor between waits.
func WithMultiplier(m float64) Option {
	return func(s *settings) {
		if m >= 1 {
			s.multiplier = m
		}
	}
}

// WithJitter sets the randomization factor, between 0 and 1.
func WithJitter(j float64) Option {
	return func(s *settings) {
		if j >= 0 && j <= 1 {
			s.jitter = j
		}
	}
}

// WithRetryIf limits retries to errors fn accepts. Without it every error
// not marked Permanent is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *settings) { s.retryIf = fn }
}

// WithOnRetry is called before each wait with the attempt that failed.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN
// ══════════════════════════════════════════════════════════════════════════════

// Retrier keeps a fixed option set for a client that retries many calls.
type Retrier struct {
	s settings
}

// New builds a Retrier.
func New(opts ...Option) *Retrier {
	return &Retrier{s: newSettings(opts)}
}

// Do runs op until it succeeds, fails permanently or runs out of attempts.
// The returned error is the last one op produced.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := run(ctx, r.s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is a one-off Retrier.Do.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData is Do for an operation that yields a value, e.g. a connection.
func DoWithData[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	return run(ctx, newSettings(opts), op)
}

func run[T any](ctx context.Context, s settings, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initial
	b.MaxInterval = s.max
	b.Multiplier = s.multiplier
	b.RandomizationFactor = s.jitter

	attempt := 0
	var last error
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err
		if IsPermanent(err) || (s.retryIf != nil && !s.retryIf(err)) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if s.onRetry != nil {
				s.onRetry(attempt, err, delay)
			}
		}),
	)
	if err == nil {
		return v, nil
	}
	if last == nil {
		return zero, err
	}
	if p, ok := last.(*permanentError); ok {
		return zero, p.err
	}
	return zero, last
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// CalendarRetrier backs off slowly enough to stay under the calendar's rate
// limit. opts override the preset.
func CalendarRetrier(opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(3),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(10 * time.Second),
		WithJitter(0.2),
	}
	return New(append(base, opts...)...)
}

// StartupOptions waits up to roughly half a minute for a database or Redis
// that is still starting. opts override the preset.
func StartupOptions(opts ...Option) []Option {
	base := []Option{
		WithMaxAttempts(6),
		WithInitialDelay(250 * time.Millisecond),
		WithMaxDelay(5 * time.Second),
	}
	return append(base, opts...)
}
