// Package lock provides the per-customer critical sections that cart
// mutations run in.
package lock

import (
	"context"
	"sync"
)

// Locker serializes work on a key. Lock blocks until the key is held or
// ctx is done and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ProcessLocker keeps one mutex per key inside the current process
type ProcessLocker struct {
	locks sync.Map // key -> chan struct{}
}

// NewProcessLocker creates an in-process locker
func NewProcessLocker() *ProcessLocker {
	return &ProcessLocker{}
}

// Lock acquires the key. A one-slot channel stands in for the mutex so
// the wait can observe ctx.
func (l *ProcessLocker) Lock(ctx context.Context, key string) (func(), error) {
	v, _ := l.locks.LoadOrStore(key, make(chan struct{}, 1))
	slot := v.(chan struct{})

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}
