package lock

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker keys in-process semaphores by name. Entries are refcounted
// and dropped once the last waiter leaves, so the map stays bounded by
// the number of keys currently in flight.
type LocalLocker struct {
	entries     cmap.ConcurrentMap[string, *localEntry]
	waitTimeout time.Duration
}

// NewLocalLocker bounds each acquisition wait by waitTimeout; zero or
// negative means waiting is bounded only by the caller's context.
func NewLocalLocker(waitTimeout time.Duration) *LocalLocker {
	return &LocalLocker{
		entries:     cmap.New[*localEntry](),
		waitTimeout: waitTimeout,
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	entry := l.entries.Upsert(key, nil, func(exists bool, current, _ *localEntry) *localEntry {
		if !exists {
			current = &localEntry{sem: make(chan struct{}, 1)}
		}
		current.refs++
		return current
	})

	waitCtx := ctx
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	select {
	case entry.sem <- struct{}{}:
	case <-waitCtx.Done():
		l.unref(key)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}

	defer func() {
		<-entry.sem
		l.unref(key)
	}()

	return fn(ctx)
}

func (l *LocalLocker) unref(key string) {
	l.entries.RemoveCb(key, func(_ string, entry *localEntry, exists bool) bool {
		if !exists {
			return false
		}
		entry.refs--
		return entry.refs == 0
	})
}
