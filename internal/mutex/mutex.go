// Package mutex implements a distributed try-lock on top of the shared
// store's SetIfAbsent primitive, the Go counterpart of the Python project's
// RedisLock.
package mutex

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devenwen/callme-gate/internal/platform/apperrors"
	"github.com/devenwen/callme-gate/internal/platform/store"
)

const lockKeyPrefix = "redis_lock"

// Mutex is a single lock attempt against one named resource. Each Mutex
// instance carries its own owner id, so only the instance that acquired a
// lock can release or extend it.
type Mutex struct {
	store      store.Client
	name       string
	lockKey    string
	ttl        time.Duration
	retryTimes int
	retryDelay time.Duration
	ownerID    string
	acquired   bool
}

// NewMutex builds a Mutex for the given resource name. ttl bounds how long
// the lock survives if its holder dies without releasing it; retryTimes and
// retryDelay control how many additional attempts Acquire makes before
// giving up.
func NewMutex(s store.Client, name string, ttl time.Duration, retryTimes int, retryDelay time.Duration) *Mutex {
	return &Mutex{
		store:      s,
		name:       name,
		lockKey:    lockKeyPrefix + ":" + name,
		ttl:        ttl,
		retryTimes: retryTimes,
		retryDelay: retryDelay,
		ownerID:    uuid.New().String(),
	}
}

// Acquire attempts to claim the lock, retrying retryTimes additional times
// with retryDelay between attempts.
func (m *Mutex) Acquire(ctx context.Context) (bool, error) {
	for attempt := 0; attempt <= m.retryTimes; attempt++ {
		ok, err := m.store.SetIfAbsent(ctx, m.lockKey, m.ownerID, m.ttl)
		if err != nil {
			return false, err
		}
		if ok {
			m.acquired = true
			return true, nil
		}
		if attempt < m.retryTimes {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
	}
	return false, nil
}

// Release drops the lock, but only if this Mutex still owns it.
func (m *Mutex) Release(ctx context.Context) (bool, error) {
	current, ok, err := m.store.Get(ctx, m.lockKey)
	if err != nil {
		return false, err
	}
	if !ok || current != m.ownerID {
		return false, nil
	}
	if err := m.store.Delete(ctx, m.lockKey); err != nil {
		return false, err
	}
	m.acquired = false
	return true, nil
}

// Extend pushes the lock's expiry out by an additional duration, but only if
// this Mutex still owns it and the lock has not already expired.
func (m *Mutex) Extend(ctx context.Context, additional time.Duration) (bool, error) {
	current, ok, err := m.store.Get(ctx, m.lockKey)
	if err != nil {
		return false, err
	}
	if !ok || current != m.ownerID {
		return false, nil
	}
	remaining, err := m.store.TTL(ctx, m.lockKey)
	if err != nil {
		return false, err
	}
	if remaining < 0 {
		return false, nil
	}
	if err := m.store.Expire(ctx, m.lockKey, remaining+additional); err != nil {
		return false, err
	}
	return true, nil
}

// IsAlive reports whether this Mutex currently owns a live lock.
func (m *Mutex) IsAlive(ctx context.Context) (bool, error) {
	current, ok, err := m.store.Get(ctx, m.lockKey)
	if err != nil {
		return false, err
	}
	return ok && current == m.ownerID, nil
}

// WithLock runs fn only if Acquire (with this Mutex's retry settings)
// succeeds, releasing the lock afterward regardless of fn's outcome. It
// returns ErrLockNotAcquired without calling fn when acquisition fails, the
// Go analogue of the decorator silently skipping the wrapped call.
func (m *Mutex) WithLock(ctx context.Context, fn func(context.Context) error) error {
	acquired, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return apperrors.ErrLockNotAcquired
	}
	defer func() { _, _ = m.Release(ctx) }()
	return fn(ctx)
}
