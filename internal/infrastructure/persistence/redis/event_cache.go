package redis

import (
	"context"
	"errors"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
)

// EventCache stores fetched scheduling events per department.
type EventCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewEventCache creates an EventCache. A non-positive ttl uses TTLEvents.
func NewEventCache(cache *Cache, ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = TTLEvents
	}
	return &EventCache{cache: cache, ttl: ttl}
}

// Get returns cached events, or ok=false on a miss.
func (c *EventCache) Get(ctx context.Context, department string) ([]schedule.SchedulingEvent, bool, error) {
	var events []schedule.SchedulingEvent
	err := c.cache.Get(ctx, EventsKey(department), &events)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return events, true, nil
}

// Set stores events for department.
func (c *EventCache) Set(ctx context.Context, department string, events []schedule.SchedulingEvent) error {
	if events == nil {
		events = []schedule.SchedulingEvent{}
	}
	return c.cache.Set(ctx, EventsKey(department), events, c.ttl)
}

// InvalidateAll drops every cached list.
func (c *EventCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeleteByPattern(ctx, PrefixEvents+"*")
}
