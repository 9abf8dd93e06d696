// Package lock serializes work per key: per-user behavior updates and
// per-sweep scheduler runs. The Redis implementation holds leases across
// instances; the local one is used when no Redis is configured.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned by Lock when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive per-key locks. ttl bounds how long a crashed
// holder can keep a distributed lock; local locks ignore it.
type Locker interface {
	// Lock blocks until the key is free or ctx is done.
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
	// TryLock returns ok=false immediately when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error)
}

// Local is an in-process Locker. Entries are dropped once no goroutine holds or waits on them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: map[string]*localEntry{}}
}

func (l *Local) acquireEntry(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *Local) releaseEntry(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *Local) unlocker(key string, e *localEntry) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.releaseEntry(key, e)
		})
	}
}

func (l *Local) Lock(ctx context.Context, key string, _ time.Duration) (Unlock, error) {
	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return l.unlocker(key, e), nil
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (l *Local) TryLock(_ context.Context, key string, _ time.Duration) (Unlock, bool, error) {
	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return l.unlocker(key, e), true, nil
	default:
		l.releaseEntry(key, e)
		return nil, false, nil
	}
}
