package pool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitCondReturnsImmediatelyWhenPredicateTrue(t *testing.T) {
	p := &Pool{}
	cond := sync.NewCond(&p.mu)

	if err := p.waitCond(context.Background(), cond, time.Time{}, func() bool { return true }); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestWaitCondTimesOutAtDeadline(t *testing.T) {
	p := &Pool{}
	cond := sync.NewCond(&p.mu)

	start := time.Now()
	p.mu.Lock()
	err := p.waitCond(context.Background(), cond, start.Add(30*time.Millisecond), func() bool { return false })
	p.mu.Unlock()

	if err != ErrWaitQueueTimeout {
		t.Fatalf("expected ErrWaitQueueTimeout, got %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", time.Since(start))
	}
}

func TestWaitCondRespectsContextCancellation(t *testing.T) {
	p := &Pool{}
	cond := sync.NewCond(&p.mu)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	p.mu.Lock()
	err := p.waitCond(ctx, cond, time.Time{}, func() bool { return false })
	p.mu.Unlock()

	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitCondWakesOnPredicateBecomingTrue(t *testing.T) {
	p := &Pool{}
	cond := sync.NewCond(&p.mu)

	ready := false
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.mu.Lock()
		ready = true
		cond.Broadcast()
		p.mu.Unlock()
	}()

	p.mu.Lock()
	err := p.waitCond(context.Background(), cond, time.Time{}, func() bool { return ready })
	p.mu.Unlock()

	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestAdmissionPredicateRespectsMaxPoolSize(t *testing.T) {
	p := &Pool{state: StateReady, opts: Options{MaxPoolSize: 2}}

	p.activeCheckouts = 1
	if !p.admissionPredicateLocked() {
		t.Fatalf("expected admission to be allowed below maxPoolSize")
	}

	p.activeCheckouts = 2
	if p.admissionPredicateLocked() {
		t.Fatalf("expected admission to be blocked at maxPoolSize")
	}

	p.state = StatePaused
	if !p.admissionPredicateLocked() {
		t.Fatalf("expected a non-ready pool to short-circuit the predicate")
	}
}

func TestCreationPredicatePrefersIdleOverThrottle(t *testing.T) {
	p := &Pool{state: StateReady, opts: Options{MaxConnecting: 1}}

	p.pendingCreates = 1
	if p.creationPredicateLocked() {
		t.Fatalf("expected creation to be blocked at maxConnecting with no idle connections")
	}

	p.idle = []*Connection{{}}
	if !p.creationPredicateLocked() {
		t.Fatalf("expected an idle connection to satisfy the creation predicate regardless of maxConnecting")
	}
}
