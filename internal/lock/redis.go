package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultRetryDelay = 500 * time.Millisecond
	defaultPrefix     = "jobharvest:lock:"
)

// Deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// RedisOptions tunes a Redis locker. Zero values take the defaults.
type RedisOptions struct {
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
}

// Redis coordinates holders across processes with SET NX PX and a random
// token per lease. The TTL bounds how long a crashed holder blocks others.
type Redis struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	r := &Redis{
		client:     client,
		prefix:     opts.Prefix,
		ttl:        opts.TTL,
		retryDelay: opts.RetryDelay,
	}
	if r.prefix == "" {
		r.prefix = defaultPrefix
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.retryDelay <= 0 {
		r.retryDelay = DefaultRetryDelay
	}
	return r
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			return r.release(redisKey, token), nil
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (r *Redis) release(redisKey, token string) Release {
	var (
		once sync.Once
		err  error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			n, runErr := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
			switch {
			case runErr != nil:
				err = fmt.Errorf("releasing lock %s: %w", redisKey, runErr)
			case n == 0:
				err = fmt.Errorf("releasing lock %s: %w", redisKey, ErrNotHeld)
			}
		})
		return err
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
