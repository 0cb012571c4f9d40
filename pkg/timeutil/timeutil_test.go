package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestParseDueDate(t *testing.T) {
	got, err := ParseDueDate("2026-06-30")
	require.NoError(t, err)
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 30, got.Day())

	got, err = ParseDueDate("2026-06-30T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC), got.UTC())

	_, err = ParseDueDate("30/06/2026")
	assert.Error(t, err)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now, time.Date(2026, 6, 2, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, DaysUntil(now, time.Date(2026, 5, 31, 1, 0, 0, 0, time.UTC)))
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "in 3d", FormatRelative(now, now.Add(72*time.Hour)))
	assert.Equal(t, "2h ago", FormatRelative(now, now.Add(-2*time.Hour)))
	assert.Equal(t, "now", FormatRelative(now, now))
}

func TestSetLocation(t *testing.T) {
	assert.Error(t, SetLocation("Not/AZone"))
	assert.NoError(t, SetLocation(""))
}
