package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }
func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler(clock timeutil.Clock, m *metrics.Metrics) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Clock:         clock,
		Metrics:       m,
		TickInterval:  2 * time.Millisecond,
		MaxConcurrent: 2,
		RunOnStart:    true,
	})
}

func jobInfo(t *testing.T, s *Scheduler, name string) JobInfo {
	t.Helper()
	for _, info := range s.ListJobs() {
		if info.Name == name {
			return info
		}
	}
	t.Fatalf("job %s not registered", name)
	return JobInfo{}
}

func TestScheduler_RunsOnStartAndOnSchedule(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	s := newTestScheduler(clock, m)

	job := &fakeJob{name: "eligibility_poll"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(15*time.Minute)))
	require.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	// Nothing is due until the clock reaches the next slot.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	clock.Advance(15 * time.Minute)
	assert.Eventually(t, func() bool { return job.runs.Load() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info := jobInfo(t, s, "eligibility_poll")
	assert.Equal(t, int64(2), info.RunCount)
	assert.Equal(t, "@every 15m0s", info.Schedule)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("eligibility_poll", "success")))
}

func TestScheduler_NoOverlap(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	s := newTestScheduler(clock, nil)

	job := &fakeJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	clock.Advance(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load(), "a running job is not started again")
	assert.True(t, jobInfo(t, s, "slow").Running)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	s := newTestScheduler(clock, nil)

	job := &fakeJob{name: "stuck", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	history := s.History(0)
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Error, context.Canceled)
	assert.Equal(t, int64(1), jobInfo(t, s, "stuck").FailCount)
}

func TestScheduler_ConcurrencyIsBounded(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	s := NewScheduler(SchedulerConfig{Clock: clock, TickInterval: 2 * time.Millisecond, MaxConcurrent: 1, RunOnStart: true})

	release := make(chan struct{})
	first := &fakeJob{name: "a", block: release}
	second := &fakeJob{name: "b", block: release}
	require.NoError(t, s.Register(first, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(second, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return first.runs.Load()+second.runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), first.runs.Load()+second.runs.Load())

	close(release)
	assert.Eventually(t, func() bool { return first.runs.Load()+second.runs.Load() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())
}

type panicJob struct{}

func (panicJob) Name() string                  { return "panics" }
func (panicJob) Description() string           { return "" }
func (panicJob) Run(ctx context.Context) error { panic("boom") }

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	failing := &fakeJob{name: "event_refresh", err: errors.New("calendar down")}
	require.NoError(t, s.Register(failing, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(panicJob{}, NewIntervalSchedule(time.Minute)))

	res, err := s.RunNow(context.Background(), "event_refresh")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "event_refresh", res.JobName)

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "event_refresh", jobs[0].Name)
	assert.Empty(t, s.History(0), "manual runs are not part of the schedule history")
}

func TestNewIntervalSchedule(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(time.Minute), NewIntervalSchedule(0).Next(at))
	assert.Equal(t, "@every 30s", NewIntervalSchedule(30*time.Second).String())
}
