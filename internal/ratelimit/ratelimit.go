package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Jitter draws politeness delays uniformly from [min, max]. Each fetcher
// owns its own Jitter so sites never share random state.
type Jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
	min time.Duration
	max time.Duration
}

// NewJitter returns a Jitter over [min, max] using rng. If max < min the
// window collapses to min.
func NewJitter(min, max time.Duration, rng *rand.Rand) *Jitter {
	if max < min {
		max = min
	}
	return &Jitter{rng: rng, min: min, max: max}
}

// Next returns the next delay.
func (j *Jitter) Next() time.Duration {
	if j.max == j.min {
		return j.min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.min + time.Duration(j.rng.Int64N(int64(j.max-j.min)+1))
}

// HostLimiter enforces a minimum gap between consecutive requests to the same
// host. Sites that share a host share its limiter, so concurrent site workers
// never burst against one server.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // key: host
	minGap   time.Duration
}

// NewHostLimiter creates a limiter allowing one request per minGap per host.
// A zero gap disables limiting.
func NewHostLimiter(minGap time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		minGap:   minGap,
	}
}

// Wait blocks until a request to host is allowed. The returned error always
// wraps context.Canceled or context.DeadlineExceeded, including when the
// deadline is too close for the gap and the limiter refuses to wait at all.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.minGap <= 0 {
		return nil
	}
	if err := h.limiter(host).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("host limiter wait for %s: %w", host, ctxErr)
		}
		return fmt.Errorf("host limiter wait for %s: %w: %v", host, context.DeadlineExceeded, err)
	}
	return nil
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.minGap), 1)
		h.limiters[host] = l
	}
	return l
}
