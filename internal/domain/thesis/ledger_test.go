package thesis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

const testLineage = shared.LineageID("7ed99bd0-87b2-4dbb-a97b-596c3f29c49b")

func TestLedger_AppendNumbersFromOne(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var l Ledger

	l, v1, err := l.Append(testLineage, "f1", false, now)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Number)
	assert.Equal(t, StatusSubmitted, v1.StatusAtCreation)

	for i := 2; i <= 5; i++ {
		var v Version
		l, v, err = l.Append(testLineage, "f", true, now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, i, v.Number)
		assert.Equal(t, StatusResubmitted, v.StatusAtCreation)
	}

	numbers := make([]int, 0, l.Len())
	for _, v := range l.Versions() {
		numbers = append(numbers, v.Number)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers)
}

func TestLedger_RejectsSecondInitialVersion(t *testing.T) {
	l, _, err := Ledger{}.Append(testLineage, "f1", false, time.Now())
	require.NoError(t, err)

	same, _, err := l.Append(testLineage, "f2", false, time.Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidVersionSequence))
	assert.Equal(t, 1, same.Len())
}

func TestLedger_RejectsResubmissionOnEmpty(t *testing.T) {
	_, _, err := Ledger{}.Append(testLineage, "f1", true, time.Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidVersionSequence))
	assert.True(t, shared.IsDefect(err))
}

func TestLedger_RejectsEmptyFileRef(t *testing.T) {
	_, _, err := Ledger{}.Append(testLineage, "  ", false, time.Now())
	assert.True(t, shared.IsValidation(err))
}

func TestLedger_AppendDoesNotMutateReceiver(t *testing.T) {
	l1, _, err := Ledger{}.Append(testLineage, "f1", false, time.Now())
	require.NoError(t, err)

	l2, _, err := l1.Append(testLineage, "f2", true, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, l1.Len())
	assert.Equal(t, 2, l2.Len())
	assert.True(t, l2.Extends(l1))
	assert.False(t, l1.Extends(l2))

	v1, err := l2.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "f1", v1.FileRef)
}

func TestLedger_VersionsReturnsCopy(t *testing.T) {
	l, _, _ := Ledger{}.Append(testLineage, "f1", false, time.Now())

	vs := l.Versions()
	vs[0].FileRef = "tampered"

	v, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "f1", v.FileRef)
}

func TestLedger_GetMissing(t *testing.T) {
	_, err := Ledger{}.Get(1)
	assert.True(t, shared.IsNotFound(err))
}

func TestNewLedger(t *testing.T) {
	now := time.Now()
	ok := []Version{
		{LineageID: testLineage, Number: 2, FileRef: "b", CreatedAt: now, IsResubmission: true},
		{LineageID: testLineage, Number: 1, FileRef: "a", CreatedAt: now},
	}
	l, err := NewLedger(testLineage, ok)
	require.NoError(t, err)
	cur, found := l.Current()
	require.True(t, found)
	assert.Equal(t, "b", cur.FileRef)

	tests := []struct {
		name     string
		versions []Version
	}{
		{"gap", []Version{
			{LineageID: testLineage, Number: 1},
			{LineageID: testLineage, Number: 3, IsResubmission: true},
		}},
		{"duplicate", []Version{
			{LineageID: testLineage, Number: 1},
			{LineageID: testLineage, Number: 1},
		}},
		{"foreign lineage", []Version{
			{LineageID: "other", Number: 1},
		}},
		{"first marked as resubmission", []Version{
			{LineageID: testLineage, Number: 1, IsResubmission: true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLedger(testLineage, tt.versions)
			assert.True(t, errors.Is(err, shared.ErrInvalidVersionSequence))
		})
	}
}
