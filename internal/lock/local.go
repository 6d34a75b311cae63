package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker used when no Redis server is
// configured. It only serializes callers inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	opts  Options
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{slots: map[string]chan struct{}{}, opts: opts.withDefaults()}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

type localLease struct {
	ch   chan struct{}
	once sync.Once
}

func (l *LocalLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
		return &localLease{ch: ch}, nil
	default:
	}
	t := time.NewTimer(l.opts.Wait)
	defer t.Stop()
	select {
	case ch <- struct{}{}:
		return &localLease{ch: ch}, nil
	case <-t.C:
		return nil, fmt.Errorf("lock %s: %w", name, ErrNotAcquired)
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
	}
}

func (l *localLease) Release(context.Context) error {
	released := false
	l.once.Do(func() {
		<-l.ch
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
