package redis

import (
	"context"
	"time"
)

// ReminderSet records which reminders were already sent so that repeated
// polls publish each one at most once per TTL.
type ReminderSet struct {
	cache *Cache
	ttl   time.Duration
}

// NewReminderSet creates a ReminderSet. A non-positive ttl uses TTLReminder.
func NewReminderSet(cache *Cache, ttl time.Duration) *ReminderSet {
	if ttl <= 0 {
		ttl = TTLReminder
	}
	return &ReminderSet{cache: cache, ttl: ttl}
}

// MarkOnce returns true the first time key is marked.
func (r *ReminderSet) MarkOnce(ctx context.Context, key string) (bool, error) {
	return r.cache.SetNX(ctx, ReminderKey(key), time.Now().UTC().Format(time.RFC3339), r.ttl)
}

// Forget removes a marker, allowing the reminder to fire again.
func (r *ReminderSet) Forget(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, ReminderKey(key))
}
