package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProcessLocker is the single-node Locker used with in-memory storage and in
// tests. Same key semantics as the Redis locker, scoped to this process.
type ProcessLocker struct {
	mu    sync.Mutex
	wait  time.Duration
	slots map[string]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func NewProcessLocker(wait time.Duration) *ProcessLocker {
	return &ProcessLocker{
		wait:  wait,
		slots: make(map[string]*keySlot),
	}
}

func (l *ProcessLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := l.ref(key)
	defer l.unref(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	default:
		select {
		case s.ch <- struct{}{}:
		case <-timer.C:
			return ErrLockNotAcquired
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *ProcessLocker) ref(key string) *keySlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &keySlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *ProcessLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
