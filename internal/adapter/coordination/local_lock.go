package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// LocalLocker serializes writers inside one process. It is used when Redis is disabled.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker; Acquire gives up after wait
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}, wait: wait}
}

// Acquire blocks until key is free, ctx is done or the wait elapses
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)

	select {
	case s.ch <- struct{}{}:
		return l.releaser(key, s), nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key)
		return nil, domain.ErrLockNotAcquired
	}

	return l.releaser(key, s), nil
}

func (l *LocalLocker) releaser(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key)
		})
	}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.slots[key]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}
