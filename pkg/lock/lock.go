// Package lock provides keyed mutual exclusion. Execution steps hold
// "execution:<id>" and contact mutations hold "contact:<id>".
package lock

import (
	"context"
	"sync"
)

// Locker acquires the lock for key, blocking until it is free or ctx is
// done. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func ExecutionKey(executionID string) string {
	return "execution:" + executionID
}

func ContactKey(contactID string) string {
	return "contact:" + contactID
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Unused keys are released.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}

	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
