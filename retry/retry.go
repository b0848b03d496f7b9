package retry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Policy bounds a single retry sequence. It is consumed once, by one call.
type Policy struct {
	// Retries is the number of attempts allowed after the first one
	Retries int
	// MinWait is the lower bound of the wait between attempts
	MinWait time.Duration
	// MaxWait is the upper bound of the wait between attempts
	MaxWait time.Duration
}

// wait returns a duration drawn uniformly from [MinWait, MaxWait]
func (p Policy) wait() time.Duration {
	if p.MaxWait <= p.MinWait {
		return p.MinWait
	}
	return p.MinWait + time.Duration(rand.Int63n(int64(p.MaxWait-p.MinWait)+1)) //nolint:gosec
}

// Operation is a single attempt. The context is cancelled when the sequence is.
type Operation[T any] func(ctx context.Context) (T, error)

// Task is an in-flight retry sequence
type Task[T any] struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	finished  bool
	cancelled bool
	done      chan struct{}
	abort     chan struct{}
	result    T
	err       error
}

// Start runs op in the background following the policy and returns the task handle
func Start[T any](ctx context.Context, policy Policy, op Operation[T]) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
		abort:  make(chan struct{}),
	}
	go t.run(ctx, policy, op)
	return t
}

// Do runs op following the policy and waits for its outcome
func Do[T any](ctx context.Context, policy Policy, op Operation[T]) (T, error) {
	return Start(ctx, policy, op).Wait()
}

// Cancel stops the sequence. A pending Wait returns ErrCancelled unless the
// sequence had already completed. Cancelling never undoes an attempt that
// already reached its destination.
func (t *Task[T]) Cancel() {
	t.mu.Lock()
	if !t.finished && !t.cancelled {
		t.cancelled = true
		close(t.abort)
	}
	t.mu.Unlock()
	t.cancel()
}

// Wait blocks until the sequence completes or is cancelled
func (t *Task[T]) Wait() (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-t.abort:
		var zero T
		return zero, ErrCancelled
	}
}

func (t *Task[T]) complete(result T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.finished = true
	t.result = result
	t.err = err
	close(t.done)
	t.cancel()
}

func (t *Task[T]) abortWith(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.cancelled {
		return
	}
	t.finished = true
	t.err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	close(t.done)
	t.cancel()
}

func (t *Task[T]) run(ctx context.Context, policy Policy, op Operation[T]) {
	retriesLeft := policy.Retries
	for {
		if ctx.Err() != nil {
			t.abortWith(ctx.Err())
			return
		}

		result, err := op(ctx)
		if err == nil {
			t.complete(result, nil)
			return
		}
		if ctx.Err() != nil {
			t.abortWith(ctx.Err())
			return
		}
		if !IsRetryable(err) || retriesLeft <= 0 {
			t.complete(result, err)
			return
		}
		retriesLeft--

		timer := time.NewTimer(policy.wait())
		select {
		case <-ctx.Done():
			timer.Stop()
			t.abortWith(ctx.Err())
			return
		case <-timer.C:
		}
	}
}
