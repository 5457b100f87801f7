package lock

import (
	"context"
	"sync"
)

// Local serializes holders within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	for {
		l.mu.Lock()
		done, busy := l.held[key]
		if !busy {
			done = make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return l.release(key, done), nil
		}
		l.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Local) release(key string, done chan struct{}) Release {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == done {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(done)
		})
		return nil
	}
}

func (l *Local) Close() error { return nil }
