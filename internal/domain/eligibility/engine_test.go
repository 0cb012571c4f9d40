package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

var due = time.Date(2026, time.June, 30, 23, 59, 0, 0, time.UTC)

func TestIsEligible_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		want   bool
		reason DenialReason
	}{
		{"window start is inclusive", due.AddDate(0, 0, -14), true, ReasonNone},
		{"due date is inclusive", due, true, ReasonNone},
		{"inside window", due.AddDate(0, 0, -3), true, ReasonNone},
		{"one day before window", due.AddDate(0, 0, -15), false, ReasonWindowNotOpenYet},
		{"one second before window", due.AddDate(0, 0, -14).Add(-time.Second), false, ReasonWindowNotOpenYet},
		{"one second after due", due.Add(time.Second), false, ReasonWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := IsEligible(tt.now, due, true, DefaultWindowDays)
			assert.Equal(t, tt.want, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestIsEligible_StorageNotReadyWins(t *testing.T) {
	for _, now := range []time.Time{
		due.AddDate(0, 0, -30),
		due.AddDate(0, 0, -1),
		due.AddDate(0, 0, 2),
	} {
		d := IsEligible(now, due, false, DefaultWindowDays)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonStorageNotReady, d.Reason)
	}
}

func TestIsEligible_ReportsWindow(t *testing.T) {
	d := IsEligible(due, due, true, 7)
	assert.Equal(t, due.AddDate(0, 0, -7), d.Window.From)
	assert.Equal(t, due, d.Window.To)
}

func TestPolicy_EvaluateWithoutEvent(t *testing.T) {
	d := DefaultPolicy().Evaluate(due, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoActiveEvent, d.Reason)
	assert.True(t, errors.Is(d.Err(), shared.ErrEligibilityDenied))
}

func TestPolicy_EventOverridesWindow(t *testing.T) {
	p := NewPolicy(14)
	ev := &schedule.SchedulingEvent{ID: "e", Category: schedule.CategorySubmission, DueDate: due, Readiness: true, WindowDays: 3}

	assert.False(t, p.Evaluate(due.AddDate(0, 0, -4), ev).Allowed)
	assert.True(t, p.Evaluate(due.AddDate(0, 0, -3), ev).Allowed)

	ev.WindowDays = 0
	assert.True(t, p.Evaluate(due.AddDate(0, 0, -4), ev).Allowed)
}

func TestNewPolicy_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultWindowDays, NewPolicy(0).WindowDays)
	assert.Equal(t, DefaultWindowDays, NewPolicy(-5).WindowDays)
	assert.Equal(t, 21, NewPolicy(21).WindowDays)
}

func TestDecision_Err(t *testing.T) {
	assert.NoError(t, Decision{Allowed: true}.Err())

	err := Decision{Reason: ReasonWindowClosed}.Err()
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonWindowClosed, denied.Reason)
	assert.Contains(t, err.Error(), "window_closed")
}
