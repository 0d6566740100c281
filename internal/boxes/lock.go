package boxes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/redis"
)

const (
	boxLockTTL      = 15 * time.Second
	boxLockAttempts = 5
	boxLockBackoff  = 100 * time.Millisecond
)

// LockManager serializes mutations per box id.
type LockManager interface {
	WithLock(ctx context.Context, boxID uuid.UUID, fn func(ctx context.Context) error) error
}

// RedisLockManager implements per-box locks with SETNX + TTL. Concurrent
// mutators on the same box retry briefly, then fail with a conflict rather
// than block indefinitely. Different boxes never contend.
type RedisLockManager struct {
	store redis.LockStore
}

// NewRedisLockManager builds the lock manager.
func NewRedisLockManager(store redis.LockStore) (*RedisLockManager, error) {
	if store == nil {
		return nil, errors.New("redis store required for box locks")
	}
	return &RedisLockManager{store: store}, nil
}

// WithLock runs fn while holding the box lock.
func (m *RedisLockManager) WithLock(ctx context.Context, boxID uuid.UUID, fn func(ctx context.Context) error) error {
	key := m.store.LockKey("box", boxID.String())
	owner := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < boxLockAttempts; attempt++ {
		ok, err := m.store.SetNX(ctx, key, owner, boxLockTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire box lock")
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(boxLockBackoff):
		}
	}
	if !acquired {
		return pkgerrors.New(pkgerrors.CodeConflict, "box is being modified by another request")
	}

	defer func() {
		value, err := m.store.Get(context.WithoutCancel(ctx), key)
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return
			}
			return
		}
		// release only if we still own it; an expired lock may have been re-acquired
		if value == owner {
			_ = m.store.Del(context.WithoutCancel(ctx), key)
		}
	}()

	return fn(ctx)
}
