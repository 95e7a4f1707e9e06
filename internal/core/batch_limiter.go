package core

// batch_limiter.go bounds how many batch operations (batch approve, batch
// void, batch field update) run at once in this process.
//
// Each batch holds one slot for its whole run. When every slot is taken a
// new batch waits up to maxWait and then fails with ErrTooManyBatches.
// WaitForDrain lets shutdown wait for running batches.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyBatches is returned when no batch slot frees up in time.
var ErrTooManyBatches = errors.New("too many concurrent batch operations")

// DefaultMaxConcurrentBatches is the default limit for parallel batches.
const DefaultMaxConcurrentBatches = 4

// DefaultBatchWait is how long a batch waits for a slot.
const DefaultBatchWait = 10 * time.Second

// BatchLimiter is a semaphore over batch operations.
type BatchLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewBatchLimiter allows at most maxConcurrent batches at a time.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultBatchWait
	}
	return &BatchLimiter{slots: make(chan struct{}, maxConcurrent), maxWait: maxWait}
}

// Acquire takes a slot. The caller must call Release when done.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyBatches
	}
}

// Release frees a slot taken by Acquire.
func (l *BatchLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active returns the number of running batches.
func (l *BatchLimiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *BatchLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no batch runs or ctx is done.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// run executes fn holding a slot. A nil limiter runs fn directly.
func (l *BatchLimiter) run(ctx context.Context, fn func() error) error {
	if l == nil {
		return fn()
	}
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
