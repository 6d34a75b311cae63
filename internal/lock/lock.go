// Package lock provides named advisory locks. The Token Manager serializes
// credential mutations under "token" and the version engine serializes
// appends per entity.
package lock

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

var (
	// ErrNotAcquired is returned when the lock stays busy for the whole wait.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned by Release when the lease expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)

// Lease is a held lock. Release must be called on every exit path.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases on named resources.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, error)
}

// Options tune how long Acquire waits and how long a lease lives.
type Options struct {
	Wait  time.Duration // total time Acquire keeps retrying
	TTL   time.Duration // lease expiry, guards against crashed holders
	Retry time.Duration // base pause between attempts
}

func (o Options) withDefaults() Options {
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.Retry <= 0 {
		o.Retry = 25 * time.Millisecond
	}
	return o
}

// backoff returns the pause before the next attempt, with up to 50% jitter.
func (o Options) backoff() time.Duration {
	return o.Retry + time.Duration(rand.Int64N(int64(o.Retry)/2+1))
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
