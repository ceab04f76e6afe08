// Package keylock provides in-process mutual exclusion keyed by an integer id.
//
// Each key owns a one-slot semaphore that exists only while the key is held or
// awaited, so memory stays proportional to the number of contended keys rather
// than the number of keys ever locked.
package keylock

import (
	"context"
	"sync"
)

type slot struct {
	sem     chan struct{}
	waiters int
}

// Locker hands out per-key locks. The zero value is not usable; use New.
type Locker struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{slots: make(map[int64]*slot)}
}

// Lock blocks until the lock for key is acquired or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key int64) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.release(key, s)
		})
	}, nil
}

// release drops one reference to the slot, removing it once unused.
func (l *Locker) release(key int64, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}

// Len reports the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
