package schedule

import (
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// SelectActiveEvent returns the event of the requested category with the
// soonest due date that has not passed yet. The boolean is false when no such
// event exists; that is a normal "no window open" outcome, not an error.
// Events sharing a due date resolve to the first one in input order.
func SelectActiveEvent(events []SchedulingEvent, category Category, now time.Time) (SchedulingEvent, bool) {
	var (
		best  SchedulingEvent
		found bool
	)
	for _, e := range events {
		if e.Category != category || e.DueDate.Before(now) {
			continue
		}
		if !found || e.DueDate.Before(best.DueDate) {
			best = e
			found = true
		}
	}
	return best, found
}

// ResolveActiveEvent is SelectActiveEvent for callers that prefer an error.
// It returns ErrNoActiveEvent when nothing matches.
func ResolveActiveEvent(events []SchedulingEvent, category Category, now time.Time) (SchedulingEvent, error) {
	e, ok := SelectActiveEvent(events, category, now)
	if !ok {
		return SchedulingEvent{}, shared.ErrNoActiveEvent
	}
	return e, nil
}

// Upcoming returns events of the category whose due date has not passed,
// ordered by due date. Used for listings; selection uses SelectActiveEvent.
func Upcoming(events []SchedulingEvent, category Category, now time.Time) []SchedulingEvent {
	out := make([]SchedulingEvent, 0, len(events))
	for _, e := range events {
		if e.Category == category && !e.DueDate.Before(now) {
			out = append(out, e)
		}
	}
	// insertion sort keeps equal due dates in input order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].DueDate.Before(out[j-1].DueDate); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
