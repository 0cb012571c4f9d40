// Package repotest provides a conformance suite that every thesis.Repository
// implementation runs from its own tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) thesis.Repository

var (
	// Base is a whole-second instant so that millisecond stores round-trip it.
	Base       = time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	Student    = thesis.Actor{ID: "student-42", Role: thesis.RoleStudent}
	Supervisor = thesis.Actor{ID: "prof-7", Role: thesis.RoleSupervisor}
)

// LineageID is the lineage used by the fixtures.
const LineageID = "3b241101-e2bb-4255-8caf-4136c566a962"

// Draft returns an unsaved lineage for Student.
func Draft(t *testing.T, id, studentID string) *thesis.Thesis {
	t.Helper()
	d, err := thesis.NewDraft(thesis.NewDraftParams{ID: id, StudentID: studentID, Department: "physics", CreatedAt: Base})
	require.NoError(t, err)
	return d
}

// Event returns an open, ready event of the given category due in a week.
func Event(category schedule.Category) *schedule.SchedulingEvent {
	return &schedule.SchedulingEvent{
		ID:        "evt-" + string(category),
		Category:  category,
		DueDate:   Base.AddDate(0, 0, 7),
		Readiness: true,
	}
}

// SubmitTransition builds the first submission of d at Base.
func SubmitTransition(t *testing.T, d *thesis.Thesis) *thesis.Transition {
	t.Helper()
	m := thesis.NewMachine(eligibility.DefaultPolicy())
	tr, err := m.Submit(d, thesis.SubmitParams{
		FileRef:      "uploads/" + d.Lineage.StudentID.String() + "/v1.pdf",
		SupervisorID: Supervisor.ID,
		Actor:        thesis.Actor{ID: d.Lineage.StudentID, Role: thesis.RoleStudent},
		Now:          Base,
		Event:        Event(schedule.CategorySubmission),
	})
	require.NoError(t, err)
	return tr
}

// RunRepositoryConformance checks the persistence contract shared by all stores.
func RunRepositoryConformance(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Get(ctx, LineageID)
		assert.ErrorIs(t, err, shared.ErrThesisNotFound)
		assert.True(t, shared.IsNotFound(err))

		_, err = repo.GetByStudent(ctx, "nobody")
		assert.ErrorIs(t, err, shared.ErrThesisNotFound)
	})

	t.Run("FullCycleRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		m := thesis.NewMachine(eligibility.DefaultPolicy())

		tr := SubmitTransition(t, Draft(t, LineageID, Student.ID.String()))
		require.NoError(t, repo.Save(ctx, tr))

		got, err := repo.Get(ctx, LineageID)
		require.NoError(t, err)
		assert.Equal(t, thesis.StatusUnderReview, got.State.Status)
		assert.Equal(t, 1, got.State.CurrentVersion)
		assert.Equal(t, int64(1), got.Revision)
		assert.Equal(t, Supervisor.ID, got.Lineage.SupervisorID)
		require.Len(t, got.History, 1)
		assert.Equal(t, thesis.StatusSubmitted, got.History[0].Status)

		tr, err = m.RequestResubmission(got, Supervisor, "fix methodology", Base.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, tr))

		got, err = repo.GetByStudent(ctx, Student.ID)
		require.NoError(t, err)
		assert.Equal(t, thesis.StatusResubmissionRequested, got.State.Status)
		assert.Equal(t, "fix methodology", got.State.ResubmissionReason)
		require.NotNil(t, got.State.ResubmissionRequestedAt)
		assert.True(t, Base.Add(time.Hour).Equal(*got.State.ResubmissionRequestedAt))

		tr, err = m.Resubmit(got, thesis.ResubmitParams{
			FileRef: "uploads/student-42/v2.pdf",
			Actor:   Student,
			Now:     Base.Add(2 * time.Hour),
			Event:   Event(schedule.CategoryResubmission),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, tr))

		got, err = repo.Get(ctx, LineageID)
		require.NoError(t, err)
		assert.Equal(t, thesis.StatusUnderReview, got.State.Status)
		assert.Empty(t, got.State.ResubmissionReason)
		assert.Equal(t, int64(3), got.Revision)

		versions := got.Ledger.Versions()
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].Number)
		assert.False(t, versions[0].IsResubmission)
		assert.Equal(t, "uploads/student-42/v1.pdf", versions[0].FileRef)
		assert.Equal(t, 2, versions[1].Number)
		assert.True(t, versions[1].IsResubmission)
		assert.True(t, Base.Add(2*time.Hour).Equal(versions[1].CreatedAt))

		statuses := make([]thesis.Status, 0, len(got.History))
		for _, e := range got.History {
			statuses = append(statuses, e.Status)
		}
		assert.Equal(t, []thesis.Status{
			thesis.StatusSubmitted,
			thesis.StatusResubmissionRequested,
			thesis.StatusResubmitted,
		}, statuses)
		assert.Equal(t, "fix methodology", got.History[1].Comments)
		assert.Equal(t, Supervisor.ID, got.History[1].ActorID)
	})

	t.Run("StaleRevisionRejected", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		m := thesis.NewMachine(eligibility.DefaultPolicy())

		first := SubmitTransition(t, Draft(t, LineageID, Student.ID.String()))
		require.NoError(t, repo.Save(ctx, first))

		// a second first-submit for the same lineage lost the race
		again := SubmitTransition(t, Draft(t, LineageID, Student.ID.String()))
		assert.ErrorIs(t, repo.Save(ctx, again), shared.ErrStaleRevision)

		stored, err := repo.Get(ctx, LineageID)
		require.NoError(t, err)

		approve, err := m.Approve(stored, Supervisor, "ok", Base.Add(time.Hour))
		require.NoError(t, err)
		reject, err := m.Reject(stored, Supervisor, "no", Base.Add(time.Hour))
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, approve))
		err = repo.Save(ctx, reject)
		assert.ErrorIs(t, err, shared.ErrStaleRevision)
		assert.True(t, shared.IsConflict(err))

		stored, err = repo.Get(ctx, LineageID)
		require.NoError(t, err)
		assert.Equal(t, thesis.StatusApproved, stored.State.Status)
		assert.Len(t, stored.History, 2)
	})

	t.Run("ConcurrentWritersOneWins", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		m := thesis.NewMachine(eligibility.DefaultPolicy())

		require.NoError(t, repo.Save(ctx, SubmitTransition(t, Draft(t, LineageID, Student.ID.String()))))
		stored, err := repo.Get(ctx, LineageID)
		require.NoError(t, err)

		const writers = 8
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			stales int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tr, err := m.Approve(stored, Supervisor, "", Base.Add(time.Minute))
				if err != nil {
					return
				}
				err = repo.Save(ctx, tr)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case shared.IsConflict(err):
					stales++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, stales)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		m := thesis.NewMachine(eligibility.DefaultPolicy())

		ids := []string{
			"0b7c2a7e-7f0e-4d7e-9c43-1f6e3c7f2a01",
			"0b7c2a7e-7f0e-4d7e-9c43-1f6e3c7f2a02",
			"0b7c2a7e-7f0e-4d7e-9c43-1f6e3c7f2a03",
		}
		for i, id := range ids {
			tr := SubmitTransition(t, Draft(t, id, "student-"+string(rune('a'+i))))
			require.NoError(t, repo.Save(ctx, tr))
		}

		stored, err := repo.Get(ctx, shared.LineageID(ids[0]))
		require.NoError(t, err)
		tr, err := m.Approve(stored, Supervisor, "", Base.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, tr))

		review, err := repo.ListByStatus(ctx, thesis.StatusUnderReview, shared.DefaultPagination())
		require.NoError(t, err)
		assert.Len(t, review, 2)
		for _, th := range review {
			assert.Equal(t, thesis.StatusUnderReview, th.State.Status)
			assert.Equal(t, 1, th.Ledger.Len())
		}

		approved, err := repo.ListByStatus(ctx, thesis.StatusApproved, shared.DefaultPagination())
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, shared.LineageID(ids[0]), approved[0].Lineage.ID)

		page, err := repo.ListByStatus(ctx, thesis.StatusUnderReview, shared.NewPagination(2, 1))
		require.NoError(t, err)
		assert.Len(t, page, 1)

		none, err := repo.ListByStatus(ctx, thesis.StatusRejected, shared.DefaultPagination())
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
