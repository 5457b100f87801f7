package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
)

// Policy is exponential backoff: Base on the first retry, doubled on each
// subsequent one, never above Cap. MaxRetries counts retries after the
// first attempt, so a request is tried at most MaxRetries+1 times.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Delay returns the backoff before retry number n (n starts at 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := p.Base
	for i := 1; i < n; i++ {
		delay *= 2
		if p.Cap > 0 && delay >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}

// State is a node of the retry state machine:
// Attempting(n) -> Success | Retryable(wait) -> Attempting(n+1) | Exhausted | Fatal.
type State int

const (
	Attempting State = iota
	Success
	Retryable
	Exhausted
	Fatal
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Exhausted:
		return "exhausted"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Step is the outcome of feeding one attempt's result to a Machine.
type Step struct {
	State   State
	Attempt int           // the attempt that produced this step
	Wait    time.Duration // only set when State is Retryable
	Err     error
}

// Machine tracks one request's progress through the retry states.
type Machine struct {
	policy   Policy
	attempt  int
	lastWait time.Duration
	state    State
}

// Start returns a machine in Attempting(1).
func (p Policy) Start() *Machine {
	return &Machine{policy: p, attempt: 1, state: Attempting}
}

// Attempt is the number of the attempt currently in flight.
func (m *Machine) Attempt() int { return m.attempt }

// State is the machine's current state.
func (m *Machine) State() State { return m.state }

// Next records the result of the current attempt and advances the machine.
// After a Retryable step the caller waits Step.Wait and makes attempt
// Step.Attempt+1. Waits never decrease across a request's retries, even
// when a Retry-After hint would be shorter than the previous wait.
func (m *Machine) Next(err error) Step {
	step := Step{Attempt: m.attempt, Err: err}

	switch {
	case err == nil:
		m.state = Success
	case !IsRetryable(err):
		m.state = Fatal
	case m.attempt > m.policy.MaxRetries:
		m.state = Exhausted
	default:
		wait := m.policy.Delay(m.attempt)
		if hint := retryAfter(err); hint > wait {
			wait = hint
		}
		if wait < m.lastWait {
			wait = m.lastWait
		}
		if m.policy.Cap > 0 && wait > m.policy.Cap {
			wait = m.policy.Cap
		}
		m.lastWait = wait
		m.attempt++
		m.state = Retryable
		step.Wait = wait
	}

	step.State = m.state
	return step
}

func retryAfter(err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// TransientError marks a transport failure (timeout, reset) as retryable even
// when its chain carries context.DeadlineExceeded from a client timeout.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error represents a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	// Context cancellation is never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		// Other 4xx are fatal.
		return false
	}

	// Non-HTTP errors (timeouts, resets, DNS) are retryable.
	return true
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
