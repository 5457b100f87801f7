// Package lock provides the per-site single-writer guarantee. A site's
// reconciliation runs while holding the lock for that site's name, so two
// processes sharing one store never reconcile the same site at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DriverLocal = "local"
	DriverRedis = "redis"
)

// ErrNotHeld is returned by a release whose lease was lost, for example
// because the Redis key expired and another holder took it.
var ErrNotHeld = errors.New("lock not held")

// Release gives up a held lock. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive leases keyed by name.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	Acquire(ctx context.Context, key string) (Release, error)
	Close() error
}

// Config selects and configures a Locker.
type Config struct {
	Driver   string
	RedisURL string
	TTL      time.Duration
}

// Open builds the Locker named by cfg.Driver. An empty driver means local.
func Open(ctx context.Context, cfg Config) (Locker, error) {
	switch cfg.Driver {
	case "", DriverLocal:
		return NewLocal(), nil
	case DriverRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, RedisOptions{TTL: cfg.TTL}), nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}
