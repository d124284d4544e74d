// Package runlock keeps batch runs (import, resync, dedup) from overlapping
// when several operators or cron jobs share one store. A held lock is kept
// alive by KeepAlive for as long as the run lasts.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLocked is returned when another run holds the lock.
	ErrLocked = errors.New("another run holds the lock")
	// ErrLost is returned by Refresh once the lock expired and was taken.
	ErrLost = errors.New("run lock lost")
)

const keyPrefix = "qabase:runlock:"

// release deletes the key only when it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refresh extends the TTL only while the key still holds our token.
var refresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out named locks backed by Redis SET NX with a TTL. A Locker
// with a nil client grants every lock, for setups without Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock is a held lock.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the named lock or returns ErrLocked.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	lk := &Lock{locker: l, key: keyPrefix + name, token: uuid.NewString()}
	if l.client == nil {
		return lk, nil
	}
	ok, err := l.client.SetNX(ctx, lk.key, lk.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}
	return lk, nil
}

// Held reports whether anyone holds the named lock.
func (l *Locker) Held(ctx context.Context, name string) (bool, error) {
	if l.client == nil {
		return false, nil
	}
	n, err := l.client.Exists(ctx, keyPrefix+name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release frees the lock if it was not already taken over after expiry.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.locker.client == nil {
		return nil
	}
	return release.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Err()
}

// Refresh resets the lock's TTL. It returns ErrLost when the key expired
// or now belongs to another run.
func (lk *Lock) Refresh(ctx context.Context) error {
	if lk == nil || lk.locker.client == nil {
		return nil
	}
	n, err := refresh.Run(ctx, lk.locker.client, []string{lk.key}, lk.token, lk.locker.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", lk.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLost, lk.key)
	}
	return nil
}

// KeepAlive refreshes the lock every third of its TTL until stop is called
// or ctx ends. onLost is called once if a refresh reports ErrLost.
func (lk *Lock) KeepAlive(ctx context.Context, onLost func(error)) (stop func()) {
	if lk == nil || lk.locker.client == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	interval := lk.locker.ttl / 3
	if interval <= 0 {
		interval = lk.locker.ttl
	}
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				err := lk.Refresh(ctx)
				if errors.Is(err, ErrLost) {
					if onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
