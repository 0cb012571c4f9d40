package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LineageLock serialises writers of one lineage across API instances.
type LineageLock struct {
	cache *Cache
}

var _ thesis.LineageLocker = (*LineageLock)(nil)

// NewLineageLock creates a LineageLock.
func NewLineageLock(cache *Cache) *LineageLock {
	return &LineageLock{cache: cache}
}

// Lock acquires the lineage lease. Returns shared.ErrLineageLocked when
// another writer holds it.
func (l *LineageLock) Lock(ctx context.Context, id shared.LineageID, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		ttl = TTLLineageLock
	}
	key := LockKey(id.String())
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, shared.WrapError("thesis", "Lock", shared.ErrServiceUnavailable, "lock store unavailable", err)
	}
	if !ok {
		return nil, shared.ErrLineageLocked
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lineage lock: %w", err)
		}
		return nil
	}
	return unlock, nil
}
