package lock

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means the lock was held by someone else for the whole wait window.
	ErrTimeout = errors.New("timed out waiting for lock")
	// ErrUnavailable means the lock backend could not be reached.
	ErrUnavailable = errors.New("lock backend unavailable")
)

// Locker serializes work per key. WithLock runs fn while holding the key's
// lock; callers doing the same work for the same key never overlap.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
