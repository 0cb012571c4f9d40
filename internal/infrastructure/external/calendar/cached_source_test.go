package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	rediscache "github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/redis"
)

type countingSource struct {
	calls  int
	events []schedule.SchedulingEvent
	err    error
}

func (s *countingSource) ListEvents(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	s.calls++
	return s.events, s.err
}

func redisEventCache(t *testing.T) (*rediscache.EventCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return rediscache.NewEventCache(rediscache.NewCacheFromClient(client), time.Minute), mr
}

func TestCachedSource_ReadThrough(t *testing.T) {
	due := time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)
	src := &countingSource{events: []schedule.SchedulingEvent{
		{ID: "cs-spring", Category: schedule.CategorySubmission, Department: "cs", DueDate: due, Readiness: true},
	}}
	cache, mr := redisEventCache(t)
	cached := NewCachedSource(src, cache, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		events, err := cached.ListEvents(ctx, "cs")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, due.Equal(events[0].DueDate))
	}
	assert.Equal(t, 1, src.calls)

	require.NoError(t, cached.Invalidate(ctx))
	_, err := cached.ListEvents(ctx, "cs")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	mr.FastForward(2 * time.Minute)
	_, err = cached.ListEvents(ctx, "cs")
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestCachedSource_DegradesWhenCacheDown(t *testing.T) {
	src := &countingSource{}
	cache, mr := redisEventCache(t)
	mr.Close()

	cached := NewCachedSource(src, cache, nil)
	_, err := cached.ListEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestCachedSource_SourceErrorIsNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("calendar down")}
	cache, _ := redisEventCache(t)
	cached := NewCachedSource(src, cache, nil)

	_, err := cached.ListEvents(context.Background(), "")
	require.Error(t, err)
	_, err = cached.ListEvents(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedSource_NilCachePassesThrough(t *testing.T) {
	src := &countingSource{}
	cached := NewCachedSource(src, nil, nil)
	_, _ = cached.ListEvents(context.Background(), "")
	_, _ = cached.ListEvents(context.Background(), "")
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, cached.Invalidate(context.Background()))
}
