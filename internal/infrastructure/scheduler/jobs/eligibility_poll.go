// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY POLL JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReminderMarker remembers reminders that were already published.
type ReminderMarker interface {
	// MarkOnce returns true the first time key is marked.
	MarkOnce(ctx context.Context, key string) (bool, error)

	// Forget removes a marker so the reminder can fire again.
	Forget(ctx context.Context, key string) error
}

// EligibilityPollJob announces submission windows as they open.
//
// For every lineage waiting on a resubmission it publishes a
// WindowOpenedEvent the first time the lineage's revision window is open.
// For every submission event it publishes one department-wide
// WindowOpenedEvent (no lineage) when its window opens. The marker makes
// repeated polls idempotent; delivery is left to event subscribers.
type EligibilityPollJob struct {
	repo      thesis.Repository
	source    schedule.EventSource
	policy    eligibility.Policy
	reminders ReminderMarker
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *logger.Logger
	config    EligibilityPollConfig

	lastRunStats atomic.Value // *EligibilityPollStats
}

// EligibilityPollConfig contains configuration for the poll job.
type EligibilityPollConfig struct {
	// PageSize is how many lineages are loaded per repository call.
	PageSize int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultEligibilityPollConfig returns sensible defaults.
func DefaultEligibilityPollConfig() EligibilityPollConfig {
	return EligibilityPollConfig{
		PageSize: shared.MaxPageSize,
		Timeout:  5 * time.Minute,
	}
}

// EligibilityPollStats contains statistics from a poll run.
type EligibilityPollStats struct {
	StartedAt          time.Time
	Duration           time.Duration
	LineagesChecked    int
	WindowsOpen        int
	RemindersPublished int
	AlreadyReminded    int
	Announcements      int
	Errors             []error
}

// EligibilityPollDeps groups the job's collaborators.
type EligibilityPollDeps struct {
	Repo      thesis.Repository
	Source    schedule.EventSource
	Policy    eligibility.Policy
	Reminders ReminderMarker
	Publisher shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// NewEligibilityPollJob creates the job.
func NewEligibilityPollJob(deps EligibilityPollDeps, config EligibilityPollConfig) *EligibilityPollJob {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	// Repositories clamp the page size, and a short page ends the scan.
	config.PageSize = shared.Pagination{PageSize: config.PageSize}.Limit()
	return &EligibilityPollJob{
		repo:      deps.Repo,
		source:    deps.Source,
		policy:    deps.Policy,
		reminders: deps.Reminders,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger.With(logger.Component("job"), logger.String("job", "eligibility_poll")),
		config:    config,
	}
}

// Name returns the job name.
func (j *EligibilityPollJob) Name() string {
	return "eligibility_poll"
}

// Description returns a human-readable description.
func (j *EligibilityPollJob) Description() string {
	return "Publishes a reminder once per lineage and event when a submission window opens"
}

// LastRunStats returns statistics from the last completed run, or nil.
func (j *EligibilityPollJob) LastRunStats() *EligibilityPollStats {
	s, _ := j.lastRunStats.Load().(*EligibilityPollStats)
	return s
}

// Run executes the poll.
func (j *EligibilityPollJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := j.clock.Now()
	stats := &EligibilityPollStats{StartedAt: now}
	defer func() {
		stats.Duration = time.Since(now)
		j.lastRunStats.Store(stats)
	}()

	all, err := j.source.ListEvents(ctx, "")
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if err := j.announceSubmissionWindows(ctx, all, now, stats); err != nil {
		return err
	}
	if err := j.remindResubmissions(ctx, all, now, stats); err != nil {
		return err
	}

	j.logger.Info("eligibility poll completed",
		logger.Int("lineages_checked", stats.LineagesChecked),
		logger.Int("windows_open", stats.WindowsOpen),
		logger.Int("reminders_published", stats.RemindersPublished),
		logger.Int("announcements", stats.Announcements),
		logger.Int("errors", len(stats.Errors)),
	)
	if len(stats.Errors) > 0 {
		return fmt.Errorf("eligibility poll: %d errors, first: %w", len(stats.Errors), stats.Errors[0])
	}
	return nil
}

// announceSubmissionWindows publishes one announcement per open submission event.
func (j *EligibilityPollJob) announceSubmissionWindows(ctx context.Context, events []schedule.SchedulingEvent, now time.Time, stats *EligibilityPollStats) error {
	for _, event := range schedule.Upcoming(events, schedule.CategorySubmission, now) {
		if err := ctx.Err(); err != nil {
			return err
		}
		decision := j.policy.Evaluate(now, &event)
		if !decision.Allowed {
			continue
		}
		published, err := j.publishOnce(ctx, "event:"+event.ID, shared.NewWindowOpenedEvent(
			"", "", event.ID, event.Category.String(), decision.Window.From, event.DueDate, now,
		))
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		if published {
			stats.Announcements++
		}
	}
	return nil
}

// remindResubmissions checks every lineage waiting on a revision.
func (j *EligibilityPollJob) remindResubmissions(ctx context.Context, events []schedule.SchedulingEvent, now time.Time, stats *EligibilityPollStats) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := j.repo.ListByStatus(ctx, thesis.StatusResubmissionRequested, shared.Pagination{Page: page, PageSize: j.config.PageSize})
		if err != nil {
			return fmt.Errorf("list lineages: %w", err)
		}

		for _, t := range batch {
			stats.LineagesChecked++
			visible := schedule.ForDepartment(events, t.Lineage.Department)
			event, ok := schedule.SelectActiveEvent(visible, schedule.CategoryResubmission, now)
			if !ok {
				continue
			}
			decision := j.policy.Evaluate(now, &event)
			if !decision.Allowed {
				continue
			}
			stats.WindowsOpen++

			key := t.Lineage.ID.String() + ":" + event.ID
			published, err := j.publishOnce(ctx, key, shared.NewWindowOpenedEvent(
				t.Lineage.ID.String(), t.Lineage.StudentID.String(), event.ID, event.Category.String(),
				decision.Window.From, event.DueDate, now,
			))
			if err != nil {
				stats.Errors = append(stats.Errors, err)
				j.logger.Error("reminder failed", logger.LineageID(t.Lineage.ID.String()), logger.Err(err))
				continue
			}
			if published {
				stats.RemindersPublished++
			} else {
				stats.AlreadyReminded++
			}
		}

		if len(batch) < j.config.PageSize {
			return nil
		}
	}
}

func (j *EligibilityPollJob) publishOnce(ctx context.Context, key string, event shared.Event) (bool, error) {
	first, err := j.reminders.MarkOnce(ctx, key)
	if err != nil {
		return false, fmt.Errorf("mark reminder %s: %w", key, err)
	}
	if !first {
		return false, nil
	}
	if err := j.publisher.Publish(event); err != nil {
		if ferr := j.reminders.Forget(ctx, key); ferr != nil {
			j.logger.Warn("could not release reminder marker", logger.String("key", key), logger.Err(ferr))
		}
		return false, fmt.Errorf("publish reminder %s: %w", key, err)
	}
	return true, nil
}
