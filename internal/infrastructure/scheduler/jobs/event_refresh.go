package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// EventRefresher re-reads scheduling events into the advisory cache.
type EventRefresher interface {
	Refresh(ctx context.Context, department string) ([]schedule.SchedulingEvent, error)
	Invalidate(ctx context.Context) error
}

// EventRefreshJob replaces the cached event lists so advisory reads see
// calendar changes within one interval.
type EventRefreshJob struct {
	refresher EventRefresher
	publisher shared.EventPublisher
	logger    *logger.Logger
}

// NewEventRefreshJob creates the job. publisher may be nil.
func NewEventRefreshJob(refresher EventRefresher, publisher shared.EventPublisher, log *logger.Logger) *EventRefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &EventRefreshJob{
		refresher: refresher,
		publisher: publisher,
		logger:    log.With(logger.Component("job"), logger.String("job", "event_refresh")),
	}
}

// Name returns the job name.
func (j *EventRefreshJob) Name() string {
	return "event_refresh"
}

// Description returns a human-readable description.
func (j *EventRefreshJob) Description() string {
	return "Refreshes cached scheduling events for every department"
}

// Run executes the refresh. The full list is fetched first; on failure the
// existing cache is left untouched.
func (j *EventRefreshJob) Run(ctx context.Context) error {
	start := time.Now()

	all, err := j.refresher.Refresh(ctx, "")
	if err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}

	if err := j.refresher.Invalidate(ctx); err != nil {
		j.logger.Warn("event cache invalidation failed", logger.Err(err))
	}

	departments := departmentsOf(all)
	for _, dept := range append([]string{""}, departments...) {
		events, err := j.refresher.Refresh(ctx, dept)
		if err != nil {
			return fmt.Errorf("refresh events for %q: %w", dept, err)
		}
		if j.publisher != nil {
			if err := j.publisher.Publish(shared.NewScheduleRefreshedEvent(dept, len(events))); err != nil {
				j.logger.Warn("publish refresh event failed", logger.Err(err))
			}
		}
	}

	j.logger.Info("scheduling events refreshed",
		logger.Int("events", len(all)),
		logger.Int("departments", len(departments)),
		logger.Latency(time.Since(start)),
	)
	return nil
}

func departmentsOf(events []schedule.SchedulingEvent) []string {
	seen := make(map[string]struct{})
	for _, e := range events {
		if e.Department != "" {
			seen[e.Department] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
