// Package scheduler runs the worker's periodic jobs: the eligibility poller
// and the scheduling-event cache refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobPanicked             = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is one unit of periodic work. Run's context is cancelled on Stop and
// when the job timeout passes.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// JobResult records one run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Running     bool
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
}

// SchedulerConfig configures NewScheduler. Zero fields take the defaults of
// DefaultSchedulerConfig, except JobTimeout where zero means no limit.
type SchedulerConfig struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// Clock decides when jobs are due.
	Clock timeutil.Clock

	// TickInterval is how often the clock is compared with due times.
	TickInterval time.Duration

	// MaxConcurrent bounds jobs running at once.
	MaxConcurrent int

	JobTimeout time.Duration

	// RunOnStart makes every job due as soon as Start is called.
	RunOnStart bool

	// MaxHistorySize bounds the results kept for History.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns the worker defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Clock:          timeutil.SystemClock{},
		TickInterval:   time.Second,
		MaxConcurrent:  2,
		JobTimeout:     5 * time.Minute,
		RunOnStart:     true,
		MaxHistorySize: 1000,
	}
}

type entry struct {
	job      Job
	schedule Schedule

	running   bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// Scheduler starts due jobs on a tick. A job never overlaps with itself: a
// job still running when it falls due again waits for its next slot.
type Scheduler struct {
	cfg     SchedulerConfig
	logger  *logger.Logger
	permits *semaphore.Weighted

	mu      sync.Mutex
	entries map[string]*entry
	history []JobResult
	stop    context.CancelFunc // nil while stopped
	runs    sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = def.MaxHistorySize
	}

	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger.With(logger.Component("scheduler")),
		permits: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		entries: make(map[string]*entry),
	}
}

// Register adds job under its name.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.Name())
	}
	s.entries[job.Name()] = &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(s.cfg.Clock.Now()),
	}
	return nil
}

// Start launches the tick loop. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrSchedulerAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	if s.cfg.RunOnStart {
		now := s.cfg.Clock.Now()
		for _, e := range s.entries {
			e.nextRun = now
		}
	}

	s.runs.Add(1)
	go s.loop(runCtx)
	s.logger.Info("scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.stop()
	s.stop = nil
	s.mu.Unlock()

	s.runs.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.runs.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		s.startDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startDue claims every due job that is not already running.
func (s *Scheduler) startDue(ctx context.Context) {
	now := s.cfg.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.running || now.Before(e.nextRun) {
			continue
		}
		e.running = true
		e.nextRun = e.schedule.Next(now)
		s.runs.Add(1)
		go s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.runs.Done()

	var res JobResult
	if err := s.permits.Acquire(ctx, 1); err == nil {
		res = s.execute(ctx, e.job)
		s.permits.Release(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.running = false
	if res.JobName == "" {
		return
	}
	e.lastRun = res.StartedAt
	e.runCount++
	if !res.Success {
		e.failCount++
	}
	s.history = append(s.history, res)
	if over := len(s.history) - s.cfg.MaxHistorySize; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) JobResult {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	res := JobResult{JobName: job.Name(), StartedAt: time.Now()}
	res.Error = runSafely(ctx, job)
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Success = res.Error == nil

	s.cfg.Metrics.RecordJob(res.JobName, res.Duration, res.Error)
	if res.Error != nil {
		s.logger.Error("job failed", logger.String("job", res.JobName), logger.Latency(res.Duration), logger.Err(res.Error))
	} else {
		s.logger.Info("job completed", logger.String("job", res.JobName), logger.Latency(res.Duration))
	}
	return res
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanicked, job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// RunNow runs a job once outside its schedule, e.g. from an operator
// command. It neither waits for a permit nor moves the next due time.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	res := s.execute(ctx, e.job)
	return res, res.Error
}

// ListJobs describes every job, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Running:     e.running,
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runCount,
			FailCount:   e.failCount,
		})
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// History returns up to limit scheduled results, oldest first. A
// non-positive limit returns everything kept.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return slices.Clone(s.history[len(s.history)-limit:])
}
