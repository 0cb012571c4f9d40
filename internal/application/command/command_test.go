package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

var (
	t0         = time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	student    = thesis.Actor{ID: "student-1", Role: thesis.RoleStudent}
	supervisor = thesis.Actor{ID: "prof-1", Role: thesis.RoleSupervisor}
	admin      = thesis.Actor{ID: "admin-1", Role: thesis.RoleAdmin}
)

type fakeSource struct {
	mu     sync.Mutex
	events []schedule.SchedulingEvent
	err    error
	calls  int
}

func (s *fakeSource) ListEvents(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schedule.ForDepartment(s.events, department), nil
}

func (s *fakeSource) set(events ...schedule.SchedulingEvent) {
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fakeCache struct {
	invalidated []string
}

func (c *fakeCache) Invalidate(ctx context.Context, lineageID string) error {
	c.invalidated = append(c.invalidated, lineageID)
	return nil
}

type fixture struct {
	store     *memory.Store
	locker    *memory.Locker
	source    *fakeSource
	publisher *fakePublisher
	cache     *fakeCache
	clock     *timeutil.FixedClock
	metrics   *metrics.Metrics

	submit   *SubmitThesisHandler
	review   *ReviewThesisHandler
	request  *RequestResubmissionHandler
	revision *SubmitRevisionHandler
}

func openEvents() []schedule.SchedulingEvent {
	return []schedule.SchedulingEvent{
		{ID: "sub-spring", Category: schedule.CategorySubmission, Department: "cs", DueDate: t0.AddDate(0, 0, 5), Readiness: true},
		{ID: "resub-spring", Category: schedule.CategoryResubmission, DueDate: t0.AddDate(0, 0, 10), Readiness: true},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		source:    &fakeSource{events: openEvents()},
		publisher: &fakePublisher{},
		cache:     &fakeCache{},
		clock:     timeutil.NewFixedClock(t0),
		metrics:   metrics.NewWithRegisterer(prometheus.NewRegistry()),
	}
	f.locker = memory.NewLockerWithClock(f.clock.Now)
	deps := Deps{
		Repo:      f.store,
		Locker:    f.locker,
		Machine:   thesis.NewMachine(eligibility.DefaultPolicy()),
		Publisher: f.publisher,
		Events:    f.source,
		Cache:     f.cache,
		Clock:     f.clock,
		Metrics:   f.metrics,
	}
	f.submit = NewSubmitThesisHandler(deps)
	f.review = NewReviewThesisHandler(deps)
	f.request = NewRequestResubmissionHandler(deps)
	f.revision = NewSubmitRevisionHandler(deps)
	return f
}

func (f *fixture) submitFirst(t *testing.T) *Result {
	t.Helper()
	res, err := f.submit.Handle(context.Background(), SubmitThesisCommand{
		StudentID:    "student-1",
		SupervisorID: "prof-1",
		Department:   "cs",
		FileRef:      "files/v1.pdf",
		Actor:        student,
	})
	require.NoError(t, err)
	return res
}

func TestLineageIDForStudent_IsDeterministic(t *testing.T) {
	a := LineageIDForStudent("student-1")
	assert.Equal(t, a, LineageIDForStudent("student-1"))
	assert.NotEqual(t, a, LineageIDForStudent("student-2"))
	assert.True(t, a.IsValid())
}

func TestCommands_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.submitFirst(t)
	assert.Equal(t, thesis.StatusUnderReview, res.Status)
	assert.Equal(t, thesis.StatusNotSubmitted, res.PreviousState)
	assert.Equal(t, 1, res.VersionNumber)
	assert.Equal(t, 2, res.ProgressStep)
	require.NotNil(t, res.Decision)
	assert.True(t, res.Decision.Allowed)

	f.clock.Advance(time.Hour)
	res, err := f.request.Handle(ctx, RequestResubmissionCommand{LineageID: res.LineageID, Reason: "expand chapter 3", Actor: supervisor})
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusResubmissionRequested, res.Status)

	f.clock.Advance(time.Hour)
	res, err = f.revision.Handle(ctx, SubmitRevisionCommand{LineageID: res.LineageID, FileRef: "files/v2.pdf", Actor: student})
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusUnderReview, res.Status)
	assert.Equal(t, 2, res.VersionNumber)

	f.clock.Advance(time.Hour)
	res, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Comments: "well done", Actor: supervisor})
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusApproved, res.Status)
	assert.Equal(t, 3, res.ProgressStep)

	stored, err := f.store.Get(ctx, shared.LineageID(res.LineageID))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Ledger.Len())
	v1, err := stored.Ledger.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "files/v1.pdf", v1.FileRef, "earlier versions are never rewritten")
	require.Len(t, stored.History, 4)
	assert.Equal(t, thesis.StatusSubmitted, stored.History[0].Status)
	assert.Equal(t, thesis.StatusResubmitted, stored.History[2].Status)
	assert.Empty(t, stored.State.ResubmissionReason)

	assert.Equal(t, []shared.EventType{
		shared.EventThesisSubmitted,
		shared.EventThesisResubmissionRequested,
		shared.EventThesisResubmitted,
		shared.EventThesisApproved,
	}, f.publisher.types())
	assert.Len(t, f.cache.invalidated, 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("submit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("approve", "ok")))
}

func TestSubmit_DeniedReasons(t *testing.T) {
	tests := []struct {
		name   string
		events []schedule.SchedulingEvent
		reason eligibility.DenialReason
	}{
		{"no event", nil, eligibility.ReasonNoActiveEvent},
		{"other department only", []schedule.SchedulingEvent{
			{ID: "e", Category: schedule.CategorySubmission, Department: "math", DueDate: t0.AddDate(0, 0, 2), Readiness: true},
		}, eligibility.ReasonNoActiveEvent},
		{"storage not ready", []schedule.SchedulingEvent{
			{ID: "e", Category: schedule.CategorySubmission, DueDate: t0.AddDate(0, 0, 2), Readiness: false},
		}, eligibility.ReasonStorageNotReady},
		{"window not open", []schedule.SchedulingEvent{
			{ID: "e", Category: schedule.CategorySubmission, DueDate: t0.AddDate(0, 0, 15), Readiness: true},
		}, eligibility.ReasonWindowNotOpenYet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.source.set(tt.events...)

			_, err := f.submit.Handle(context.Background(), SubmitThesisCommand{
				StudentID: "student-1", SupervisorID: "prof-1", Department: "cs", FileRef: "f", Actor: student,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrEligibilityDenied))
			var denied *eligibility.DeniedError
			require.True(t, errors.As(err, &denied))
			assert.Equal(t, tt.reason, denied.Reason)

			assert.Zero(t, f.store.Len(), "denied submissions leave no trace")
			assert.Empty(t, f.publisher.types())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("submit", "denied")))
		})
	}
}

func TestSubmit_SecondSubmissionIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	f.submitFirst(t)
	calls := f.source.calls

	_, err := f.submit.Handle(context.Background(), SubmitThesisCommand{
		StudentID: "student-1", SupervisorID: "prof-1", Department: "cs", FileRef: "again", Actor: student,
	})
	assert.True(t, errors.Is(err, shared.ErrStateTransition))
	assert.Equal(t, calls, f.source.calls, "transition validity is checked before events are read")
}

func TestSubmit_ReadsEventsFreshEveryTime(t *testing.T) {
	f := newFixture(t)
	f.source.set()

	_, err := f.submit.Handle(context.Background(), SubmitThesisCommand{
		StudentID: "student-1", SupervisorID: "prof-1", Department: "cs", FileRef: "f", Actor: student,
	})
	require.Error(t, err)

	f.source.set(openEvents()...)
	f.submitFirst(t)
	assert.Equal(t, 2, f.source.calls)
}

func TestSubmit_SourceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("calendar down")

	_, err := f.submit.Handle(context.Background(), SubmitThesisCommand{
		StudentID: "student-1", SupervisorID: "prof-1", Department: "cs", FileRef: "f", Actor: student,
	})
	assert.True(t, errors.Is(err, shared.ErrServiceUnavailable))
	assert.True(t, shared.IsRetryable(err))
}

func TestSubmit_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.submit.Handle(ctx, SubmitThesisCommand{
		StudentID: "student-2", SupervisorID: "prof-1", Department: "cs", FileRef: "f", Actor: student,
	})
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	res, err := f.submit.Handle(ctx, SubmitThesisCommand{
		StudentID: "student-2", SupervisorID: "prof-1", Department: "cs", FileRef: "f", Actor: admin,
	})
	require.NoError(t, err)
	assert.Equal(t, LineageIDForStudent("student-2").String(), res.LineageID)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []SubmitThesisCommand{
		{SupervisorID: "p", FileRef: "f", Actor: student},
		{StudentID: "student-1", FileRef: "f", Actor: student},
		{StudentID: "student-1", SupervisorID: "p", FileRef: " ", Actor: student},
		{StudentID: "student-1", SupervisorID: "p", FileRef: "f"},
	}
	for _, cmd := range tests {
		_, err := f.submit.Handle(context.Background(), cmd)
		assert.True(t, shared.IsValidation(err), "%+v", cmd)
	}
}

func TestReview_OnlyBoundSupervisorOrAdmin(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)
	ctx := context.Background()

	other := thesis.Actor{ID: "prof-2", Role: thesis.RoleSupervisor}
	_, err := f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Actor: other})
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	_, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Actor: student})
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	out, err := f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionReject, Comments: "plagiarism", Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusRejected, out.Status)
	assert.Equal(t, 0, out.ProgressStep)

	_, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Actor: supervisor})
	assert.True(t, errors.Is(err, shared.ErrStateTransition), "rejected is terminal")
}

func TestReview_UnknownLineage(t *testing.T) {
	f := newFixture(t)
	_, err := f.review.Handle(context.Background(), ReviewThesisCommand{
		LineageID: LineageIDForStudent("nobody").String(), Decision: DecisionApprove, Actor: supervisor,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestRequestResubmission_RequiresReason(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)

	_, err := f.request.Handle(context.Background(), RequestResubmissionCommand{LineageID: res.LineageID, Reason: "  ", Actor: supervisor})
	assert.True(t, shared.IsValidation(err))
}

func TestSubmitRevision_WindowClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitFirst(t)
	_, err := f.request.Handle(ctx, RequestResubmissionCommand{LineageID: res.LineageID, Reason: "fix", Actor: supervisor})
	require.NoError(t, err)

	f.clock.Advance(11 * 24 * time.Hour)
	_, err = f.revision.Handle(ctx, SubmitRevisionCommand{LineageID: res.LineageID, FileRef: "late.pdf", Actor: student})
	var denied *eligibility.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, eligibility.ReasonNoActiveEvent, denied.Reason, "a passed event is no longer active")

	stored, err := f.store.Get(ctx, shared.LineageID(res.LineageID))
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusResubmissionRequested, stored.State.Status)
	assert.Equal(t, 1, stored.Ledger.Len())
}

func TestSubmitRevision_NotRequested(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)

	_, err := f.revision.Handle(context.Background(), SubmitRevisionCommand{LineageID: res.LineageID, FileRef: "v2", Actor: student})
	assert.True(t, errors.Is(err, shared.ErrStateTransition))
}

func TestSubmitRevision_OtherStudentForbidden(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)

	intruder := thesis.Actor{ID: "student-9", Role: thesis.RoleStudent}
	_, err := f.revision.Handle(context.Background(), SubmitRevisionCommand{LineageID: res.LineageID, FileRef: "v2", Actor: intruder})
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestCommands_LockContention(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)
	ctx := context.Background()

	unlock, err := f.locker.Lock(ctx, shared.LineageID(res.LineageID), time.Minute)
	require.NoError(t, err)

	_, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Actor: supervisor})
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockContentionTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("approve", "conflict")))

	require.NoError(t, unlock(ctx))
	_, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: res.LineageID, Decision: DecisionApprove, Actor: supervisor})
	assert.NoError(t, err)
}

func TestCommands_NonCanonicalIDSharesLineageLock(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)
	ctx := context.Background()
	upper := strings.ToUpper(res.LineageID)

	unlock, err := f.locker.Lock(ctx, shared.LineageID(res.LineageID), time.Minute)
	require.NoError(t, err)
	_, err = f.request.Handle(ctx, RequestResubmissionCommand{LineageID: upper, Reason: "fix", Actor: supervisor})
	assert.True(t, shared.IsConflict(err), "an uppercase id must contend for the same lock")
	require.NoError(t, unlock(ctx))

	out, err := f.request.Handle(ctx, RequestResubmissionCommand{LineageID: upper, Reason: "fix", Actor: supervisor})
	require.NoError(t, err)
	assert.Equal(t, res.LineageID, out.LineageID)

	out, err = f.revision.Handle(ctx, SubmitRevisionCommand{LineageID: "{" + upper + "}", FileRef: "v2.pdf", Actor: student})
	require.NoError(t, err)
	assert.Equal(t, 2, out.VersionNumber)

	out, err = f.review.Handle(ctx, ReviewThesisCommand{LineageID: "urn:uuid:" + res.LineageID, Decision: DecisionApprove, Actor: supervisor})
	require.NoError(t, err)
	assert.Equal(t, thesis.StatusApproved, out.Status)
	assert.Equal(t, []string{res.LineageID, res.LineageID, res.LineageID, res.LineageID}, f.cache.invalidated)
}

func TestCommands_ConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t)
	res := f.submitFirst(t)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.review.Handle(context.Background(), ReviewThesisCommand{
				LineageID: res.LineageID, Decision: DecisionApprove, Actor: supervisor,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, shared.IsConflict(err) || errors.Is(err, shared.ErrStateTransition), err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
