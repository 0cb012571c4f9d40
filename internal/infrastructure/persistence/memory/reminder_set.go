package memory

import (
	"context"
	"sync"
	"time"
)

// ReminderSet is an in-process reminder key-set with expiring markers.
// It only deduplicates within one worker process.
type ReminderSet struct {
	mu      sync.Mutex
	markers map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewReminderSet creates a ReminderSet that reads the wall clock.
func NewReminderSet(ttl time.Duration) *ReminderSet {
	return NewReminderSetWithClock(ttl, time.Now)
}

// NewReminderSetWithClock creates a ReminderSet with an injected clock.
func NewReminderSetWithClock(ttl time.Duration, now func() time.Time) *ReminderSet {
	return &ReminderSet{markers: make(map[string]time.Time), ttl: ttl, now: now}
}

// MarkOnce returns true the first time key is marked within the TTL.
func (r *ReminderSet) MarkOnce(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expires, ok := r.markers[key]; ok && now.Before(expires) {
		return false, nil
	}
	r.markers[key] = now.Add(r.ttl)
	return true, nil
}

// Forget removes a marker.
func (r *ReminderSet) Forget(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.markers, key)
	r.mu.Unlock()
	return nil
}
