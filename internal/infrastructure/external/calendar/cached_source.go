package calendar

import (
	"context"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// EventCache stores event lists per department.
type EventCache interface {
	Get(ctx context.Context, department string) ([]schedule.SchedulingEvent, bool, error)
	Set(ctx context.Context, department string, events []schedule.SchedulingEvent) error
	InvalidateAll(ctx context.Context) error
}

// CachedSource is a read-through cache in front of another source.
// Only advisory reads go through it; transitions read the source directly.
// Cache failures degrade to a direct read.
type CachedSource struct {
	source schedule.EventSource
	cache  EventCache
	logger *logger.Logger
}

var _ schedule.EventSource = (*CachedSource)(nil)

// NewCachedSource wraps source. A nil cache passes every call through.
func NewCachedSource(source schedule.EventSource, cache EventCache, log *logger.Logger) *CachedSource {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedSource{source: source, cache: cache, logger: log.With(logger.Component("event_cache"))}
}

// ListEvents implements schedule.EventSource.
func (s *CachedSource) ListEvents(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	if s.cache == nil {
		return s.source.ListEvents(ctx, department)
	}

	events, ok, err := s.cache.Get(ctx, department)
	if err != nil {
		s.logger.Warn("event cache read failed", logger.Err(err))
	}
	if ok {
		return events, nil
	}
	return s.Refresh(ctx, department)
}

// Refresh reads the source and replaces the cached list.
func (s *CachedSource) Refresh(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	events, err := s.source.ListEvents(ctx, department)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, department, events); err != nil {
			s.logger.Warn("event cache write failed", logger.Err(err))
		}
	}
	return events, nil
}

// Invalidate drops every cached list.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateAll(ctx)
}
