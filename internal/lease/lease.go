// Package lease provides a time-bounded exclusivity marker in Redis. It
// stands in for a mutex across independent scheduled invocations: a holder
// that dies simply lets the lease expire.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another owner holds the lease.
var ErrHeld = errors.New("lease held by another owner")

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewLocker(client *redis.Client, key string, ttl time.Duration) *Locker {
	return &Locker{client: client, key: key, ttl: ttl}
}

// Lease is a held lock. Release it when done.
type Lease struct {
	locker   *Locker
	owner    string
	acquired time.Time
}

// Acquire takes the lease with a conditional write. It never waits.
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{locker: l, owner: owner, acquired: time.Now()}, nil
}

func (le *Lease) Owner() string { return le.owner }

// Release deletes the lease if it is still ours. Releasing an expired or
// stolen lease is not an error.
func (le *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.locker.client, []string{le.locker.key}, le.owner).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Renew pushes the expiry out by a full TTL. It returns ErrHeld when the
// lease expired and someone else took it.
func (le *Lease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, le.locker.client, []string{le.locker.key}, le.owner, le.locker.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if n == 0 {
		return ErrHeld
	}
	le.acquired = time.Now()
	return nil
}

// Stale reports whether more than half the TTL has passed since the lease
// was taken or last renewed.
func (le *Lease) Stale() bool {
	return time.Since(le.acquired) > le.locker.ttl/2
}
