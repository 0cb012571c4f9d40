package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

var day0 = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func TestSelectActiveEvent_PicksSoonestUpcoming(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "late", Category: CategorySubmission, DueDate: day(20)},
		{ID: "soon", Category: CategorySubmission, DueDate: day(10)},
	}

	got, ok := SelectActiveEvent(events, CategorySubmission, day(5))
	require.True(t, ok)
	assert.Equal(t, "soon", got.ID)
}

func TestSelectActiveEvent_NoMatchingCategory(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "r1", Category: CategoryResubmission, DueDate: day(10)},
	}

	_, ok := SelectActiveEvent(events, CategorySubmission, day(5))
	assert.False(t, ok)

	_, err := ResolveActiveEvent(events, CategorySubmission, day(5))
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestSelectActiveEvent_SkipsPastDeadlines(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "past", Category: CategorySubmission, DueDate: day(3)},
		{ID: "next", Category: CategorySubmission, DueDate: day(30)},
	}

	got, ok := SelectActiveEvent(events, CategorySubmission, day(5))
	require.True(t, ok)
	assert.Equal(t, "next", got.ID)
}

func TestSelectActiveEvent_DueNowIsStillActive(t *testing.T) {
	events := []SchedulingEvent{{ID: "today", Category: CategorySubmission, DueDate: day(5)}}

	got, ok := SelectActiveEvent(events, CategorySubmission, day(5))
	require.True(t, ok)
	assert.Equal(t, "today", got.ID)
}

func TestSelectActiveEvent_TieKeepsInputOrder(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "first", Category: CategorySubmission, DueDate: day(10)},
		{ID: "second", Category: CategorySubmission, DueDate: day(10)},
	}

	got, ok := SelectActiveEvent(events, CategorySubmission, day(1))
	require.True(t, ok)
	assert.Equal(t, "first", got.ID)
}

func TestUpcoming_SortedAndFiltered(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "c", Category: CategorySubmission, DueDate: day(30)},
		{ID: "x", Category: "defense", DueDate: day(12)},
		{ID: "a", Category: CategorySubmission, DueDate: day(10)},
		{ID: "old", Category: CategorySubmission, DueDate: day(1)},
		{ID: "b", Category: CategorySubmission, DueDate: day(20)},
	}

	got := Upcoming(events, CategorySubmission, day(5))
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestForDepartment(t *testing.T) {
	events := []SchedulingEvent{
		{ID: "all", Category: CategorySubmission},
		{ID: "cs", Category: CategorySubmission, Department: "CS"},
		{ID: "math", Category: CategorySubmission, Department: "Math"},
	}

	got := ForDepartment(events, "cs")
	require.Len(t, got, 2)
	assert.Equal(t, "all", got[0].ID)
	assert.Equal(t, "cs", got[1].ID)
}

func TestSchedulingEvent_Validate(t *testing.T) {
	valid := SchedulingEvent{ID: "e1", Category: CategorySubmission, DueDate: day(1)}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = ""
	assert.True(t, shared.IsValidation(missingID.Validate()))

	negative := valid
	negative.WindowDays = -1
	assert.True(t, shared.IsValidation(negative.Validate()))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("  Resubmission ")
	require.NoError(t, err)
	assert.Equal(t, CategoryResubmission, c)

	_, err = ParseCategory(" ")
	assert.Error(t, err)
}
