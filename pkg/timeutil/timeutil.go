// Package timeutil provides the clock abstraction and timezone helpers used by
// the service shell. Domain code never reads the clock; handlers and jobs take
// "now" from a Clock and pass it down.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in the configured institution timezone.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().In(Location())
}

// FixedClock always returns the same instant. It can be moved forward in tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	locMu sync.RWMutex
	loc   = time.UTC
)

// Location returns the institution timezone. Defaults to UTC.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return loc
}

// SetLocation loads and installs the institution timezone by IANA name.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	locMu.Lock()
	loc = l
	locMu.Unlock()
	return nil
}

// Now returns the current time in the institution timezone.
func Now() time.Time {
	return SystemClock{}.Now()
}

// StartOfDay returns 00:00:00 of t's day in the institution timezone.
func StartOfDay(t time.Time) time.Time {
	l := t.In(Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Location())
}

// EndOfDay returns 23:59:59.999999999 of t's day in the institution timezone.
func EndOfDay(t time.Time) time.Time {
	l := t.In(Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, 999999999, Location())
}

// Date and time layouts.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = "2006-01-02 15:04"
)

// ParseDueDate parses either RFC 3339 or a bare date. A bare date means the
// end of that day in the institution timezone, so the whole day stays open.
func ParseDueDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(FormatDate, value, Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: parse due date %q: %w", value, err)
	}
	return EndOfDay(d), nil
}

// FormatDateStr formats t as YYYY-MM-DD in the institution timezone.
func FormatDateStr(t time.Time) string {
	return t.In(Location()).Format(FormatDate)
}

// FormatDateTimeStr formats t as YYYY-MM-DD HH:MM in the institution timezone.
func FormatDateTimeStr(t time.Time) string {
	return t.In(Location()).Format(FormatDateTime)
}

// DaysUntil returns whole calendar days from now until t (negative if past).
func DaysUntil(now, t time.Time) int {
	a, b := StartOfDay(now), StartOfDay(t)
	return int(b.Sub(a).Hours() / 24)
}

// FormatRelative returns a short relative description of t seen from now.
func FormatRelative(now, t time.Time) string {
	d := t.Sub(now)
	if d < 0 {
		return formatPast(-d)
	}
	return formatFuture(d)
}

func formatPast(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func formatFuture(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}
