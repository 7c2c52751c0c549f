package pool

import (
	"context"
	"sync"
	"time"
)

// waitCond blocks the caller (which must hold p.mu) until predicate()
// is true, the deadline passes, or ctx is cancelled — whichever comes
// first. This is the building block for both the admission and
// creation-throttle stages of spec.md §4.2: "two independently bounded
// queues" sharing the pool's single mutex (spec.md §5), using the
// condition-variable primitive spec.md §9 calls "the natural fit...
// available in every target runtime".
//
// cond.Wait() alone cannot observe ctx cancellation or a deadline, so a
// short-lived watcher goroutine broadcasts the condition when either
// fires; the loop below then re-checks and returns the appropriate
// error. stopCh is closed as waitCond returns, which releases a watcher
// that ctx has not already woken, so no watcher keeps running after the
// call.
func (p *Pool) waitCond(ctx context.Context, cond *sync.Cond, deadline time.Time, predicate func() bool) error {
	if predicate() {
		return nil
	}

	stopCh := make(chan struct{})
	defer close(stopCh)

	var timer *time.Timer
	if !deadline.IsZero() {
		if !time.Now().Before(deadline) {
			return ErrWaitQueueTimeout
		}
		timer = time.AfterFunc(time.Until(deadline), func() {
			p.mu.Lock()
			cond.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				cond.Broadcast()
				p.mu.Unlock()
			case <-stopCh:
			}
		}()
	}

	for !predicate() {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrWaitQueueTimeout
		}
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		cond.Wait()
	}
	return nil
}

// admissionPredicateLocked implements the pool-size part of spec.md §5's
// admission CV predicate: activeCheckouts + pendingCreates < maxPoolSize.
// It returns true for a pool that is not READY so the caller can fail;
// the waiters < maxWaiters bound is checked once in Checkout before
// waiting, not here. Must be called with p.mu held.
func (p *Pool) admissionPredicateLocked() bool {
	if p.state != StateReady {
		return true // caller re-checks state explicitly and fails fast
	}
	if p.opts.MaxPoolSize > 0 && p.activeCheckouts+p.pendingCreates >= p.opts.MaxPoolSize {
		return false
	}
	return true
}

// creationPredicateLocked implements spec.md §5's creation CV predicate:
// idle deque non-empty, or pendingCreates < maxConnecting. Reuse takes
// precedence when both are true (spec.md §4.2 "Ordering / tie-breaks").
func (p *Pool) creationPredicateLocked() bool {
	if p.state != StateReady {
		return true // caller re-checks state explicitly and fails fast
	}
	if len(p.idle) > 0 {
		return true
	}
	return p.pendingCreates < p.opts.maxConnecting()
}
