package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// Locker is an in-process thesis.LineageLocker with expiring leases.
type Locker struct {
	mu     sync.Mutex
	leases map[shared.LineageID]lease
	now    func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

var _ thesis.LineageLocker = (*Locker)(nil)

// NewLocker creates a locker that reads the wall clock.
func NewLocker() *Locker {
	return NewLockerWithClock(time.Now)
}

// NewLockerWithClock creates a locker with an injected clock.
func NewLockerWithClock(now func() time.Time) *Locker {
	return &Locker{leases: make(map[shared.LineageID]lease), now: now}
}

// Lock acquires the lineage for ttl or returns ErrLineageLocked.
func (l *Locker) Lock(ctx context.Context, id shared.LineageID, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[id]; ok && now.Before(held.expires) {
		return nil, shared.ErrLineageLocked
	}

	token := uuid.NewString()
	l.leases[id] = lease{token: token, expires: now.Add(ttl)}

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[id]; ok && held.token == token {
			delete(l.leases, id)
		}
		return nil
	}
	return unlock, nil
}
