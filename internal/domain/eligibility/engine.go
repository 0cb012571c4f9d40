// Package eligibility decides whether a mutating submission action is
// permitted at a given instant. Every function here is pure: the current time
// is always an argument.
package eligibility

import (
	"fmt"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// DefaultWindowDays is the length of the pre-deadline window.
const DefaultWindowDays = 14

// DenialReason explains why an action is not permitted.
type DenialReason string

// Denial reasons in the order they are checked.
const (
	ReasonNone             DenialReason = ""
	ReasonNoActiveEvent    DenialReason = "no_active_event"
	ReasonStorageNotReady  DenialReason = "storage_not_ready"
	ReasonWindowNotOpenYet DenialReason = "window_not_open_yet"
	ReasonWindowClosed     DenialReason = "window_closed"
)

// String returns the string representation of DenialReason.
func (r DenialReason) String() string {
	return string(r)
}

// Decision is the outcome of an eligibility check.
type Decision struct {
	Allowed bool
	Reason  DenialReason

	// Window is the inclusive range in which the action is allowed.
	// Zero when there was no event to evaluate.
	Window shared.TimeRange
}

// Err returns a *DeniedError for a denial and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason, Window: d.Window}
}

// WindowStart returns the first instant of the window for a due date.
// The offset is in calendar days so that DST shifts keep wall-clock time.
func WindowStart(dueDate time.Time, windowDays int) time.Time {
	return dueDate.AddDate(0, 0, -windowDays)
}

// IsEligible applies the pre-deadline window rule. Readiness is checked before
// the dates and exactly one reason is returned per denial.
func IsEligible(now, dueDate time.Time, readiness bool, windowDays int) Decision {
	window := shared.TimeRange{From: WindowStart(dueDate, windowDays), To: dueDate}

	switch {
	case !readiness:
		return Decision{Reason: ReasonStorageNotReady, Window: window}
	case now.Before(window.From):
		return Decision{Reason: ReasonWindowNotOpenYet, Window: window}
	case now.After(window.To):
		return Decision{Reason: ReasonWindowClosed, Window: window}
	}
	return Decision{Allowed: true, Window: window}
}

// Policy carries the configurable part of the rule.
type Policy struct {
	WindowDays int
}

// DefaultPolicy returns the policy with the default window length.
func DefaultPolicy() Policy {
	return Policy{WindowDays: DefaultWindowDays}
}

// NewPolicy creates a policy; non-positive lengths fall back to the default.
func NewPolicy(windowDays int) Policy {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return Policy{WindowDays: windowDays}
}

// WindowFor returns the window length for an event: the event's own value
// when set, the policy value otherwise.
func (p Policy) WindowFor(event schedule.SchedulingEvent) int {
	if event.WindowDays > 0 {
		return event.WindowDays
	}
	if p.WindowDays > 0 {
		return p.WindowDays
	}
	return DefaultWindowDays
}

// Evaluate checks an optional active event. A nil event is denied with
// ReasonNoActiveEvent.
func (p Policy) Evaluate(now time.Time, event *schedule.SchedulingEvent) Decision {
	if event == nil {
		return Decision{Reason: ReasonNoActiveEvent}
	}
	return IsEligible(now, event.DueDate, event.Readiness, p.WindowFor(*event))
}

// DeniedError is returned when a mutating action fails the eligibility check.
type DeniedError struct {
	Reason DenialReason
	Window shared.TimeRange
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("eligibility denied: %s", e.Reason)
}

// Is matches shared.ErrEligibilityDenied.
func (e *DeniedError) Is(target error) bool {
	return target == shared.ErrEligibilityDenied
}
