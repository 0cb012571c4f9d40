package thesis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

func TestWorkflow_EndToEndResubmission(t *testing.T) {
	m := NewMachine(eligibility.DefaultPolicy())
	w := NewWorkflow(m)

	th := submitted(t, m)
	v1, err := th.Ledger.Get(1)
	require.NoError(t, err)

	requested, err := w.RequestChanges(th, "fix methodology", supervisor, t0.Add(24*time.Hour))
	require.NoError(t, err)
	th = requested.Thesis
	assert.Equal(t, StatusResubmissionRequested, th.State.Status)
	assert.Equal(t, "fix methodology", th.State.ResubmissionReason)
	require.NotNil(t, th.State.ResubmissionRequestedAt)
	assert.Equal(t, 1, th.Ledger.Len())
	assert.Equal(t, "fix methodology", requested.Entry.Comments)
	assert.Equal(t, 1, th.ProgressStep())

	revisedAt := t0.AddDate(0, 0, 3)
	revised, err := w.SubmitRevision(th, "files/v2.pdf", student, revisedAt, resubmissionEvent(t0.AddDate(0, 0, 10)))
	require.NoError(t, err)
	th = revised.Thesis

	assert.Equal(t, StatusUnderReview, th.State.Status)
	assert.Equal(t, 2, th.State.CurrentVersion)
	assert.Empty(t, th.State.ResubmissionReason)
	assert.Nil(t, th.State.ResubmissionRequestedAt)
	require.NotNil(t, revised.Version)
	assert.True(t, revised.Version.IsResubmission)
	assert.Equal(t, 2, revised.Version.Number)

	kept, err := th.Ledger.Get(1)
	require.NoError(t, err)
	assert.Equal(t, v1, kept)

	statuses := make([]Status, 0, len(th.History))
	for _, h := range th.History {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []Status{StatusSubmitted, StatusResubmissionRequested, StatusResubmitted}, statuses)
	assert.NoError(t, th.Validate())
	assert.Equal(t, int64(3), th.Revision)
}

func TestWorkflow_SubmitRevisionOutsideWindow(t *testing.T) {
	m := NewMachine(eligibility.DefaultPolicy())
	w := NewWorkflow(m)

	requested, err := w.RequestChanges(submitted(t, m), "fix", supervisor, t0)
	require.NoError(t, err)
	th := requested.Thesis

	_, err = w.SubmitRevision(th, "v2", student, t0, resubmissionEvent(t0.AddDate(0, 0, 30)))
	var denied *eligibility.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, eligibility.ReasonWindowNotOpenYet, denied.Reason)

	assert.Equal(t, StatusResubmissionRequested, th.State.Status)
	assert.Equal(t, 1, th.Ledger.Len())
	assert.Equal(t, "fix", th.State.ResubmissionReason)
}

func TestWorkflow_SubmitRevisionWithoutRequest(t *testing.T) {
	m := NewMachine(eligibility.DefaultPolicy())
	w := NewWorkflow(m)

	_, err := w.SubmitRevision(submitted(t, m), "v2", student, t0, nil)
	assert.True(t, errors.Is(err, shared.ErrStateTransition))
}

func TestWorkflow_VersionsStayContiguous(t *testing.T) {
	m := NewMachine(eligibility.DefaultPolicy())
	w := NewWorkflow(m)
	th := submitted(t, m)
	event := resubmissionEvent(t0.AddDate(0, 0, 10))

	for i := 0; i < 4; i++ {
		now := t0.Add(time.Duration(i+1) * time.Hour)
		req, err := w.RequestChanges(th, "again", supervisor, now)
		require.NoError(t, err)
		rev, err := w.SubmitRevision(req.Thesis, "v", student, now.Add(time.Minute), event)
		require.NoError(t, err)
		th = rev.Thesis
	}

	for i, v := range th.Ledger.Versions() {
		assert.Equal(t, i+1, v.Number)
	}
	assert.Equal(t, 5, th.State.CurrentVersion)
}

func TestThesis_ReadsDoNotMutate(t *testing.T) {
	m := NewMachine(eligibility.DefaultPolicy())
	th := submitted(t, m)
	historyLen := len(th.History)

	for i := 0; i < 3; i++ {
		_ = th.Ledger.Versions()
		_, _ = th.CurrentVersion()
		_, _ = th.Ledger.Get(1)
		_ = th.ProgressStep()
	}
	assert.Equal(t, historyLen, len(th.History))
	assert.Equal(t, 1, th.Ledger.Len())
}
