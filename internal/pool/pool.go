// Package pool implements the CMAP-style connection pool of spec.md: a
// bounded, generation-tagged inventory of handshaked connections to one
// remote endpoint, guarded by a paused/ready/closed state machine and a
// two-stage (admission, creation-throttle) wait queue.
//
// Grounded in the teacher's internal/pool/pool.go (BucketPool), whose
// single wait-channel queue is split here into two condition variables
// because the teacher had no separate cap on concurrent connection
// creation the way spec.md's maxConnecting requires.
package pool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/dialer"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/wire"
	"github.com/joao-brasil/connpool/pkg/address"
)

// State is the pool's lifecycle state, spec.md §3/§4.1.
type State int

const (
	StatePaused State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pool owns the bounded inventory of connections for one endpoint.
type Pool struct {
	mu            sync.Mutex
	admissionCond *sync.Cond
	creationCond  *sync.Cond

	id            string
	endpoint      *address.Endpoint
	opts          Options
	dialer        dialer.Dialer
	codec         wire.Codec
	authenticator auth.Authenticator
	credential    auth.Credential
	listener      events.Listener
	emitMu        sync.Mutex // serializes listener calls for this pool

	state      State
	generation uint64
	pid        int

	idle             []*Connection // front = most recently used
	activeCheckouts  int
	pendingCreates   int
	waiters          int
	operationCount   int
	nextConnectionID uint64

	// isWritable is tri-state per spec.md §3: nil = unknown.
	isWritable *bool
}

// New constructs a Pool for one endpoint. It starts PAUSED if
// opts.PauseEnabled (default true), else READY, per spec.md §4.1.
func New(endpoint *address.Endpoint, opts Options, d dialer.Dialer, codec wire.Codec, authr auth.Authenticator, cred auth.Credential, listener events.Listener) *Pool {
	if listener == nil {
		listener = events.Multi(nil)
	}
	p := &Pool{
		id:            endpoint.ID,
		endpoint:      endpoint,
		opts:          opts,
		dialer:        d,
		codec:         codec,
		authenticator: authr,
		credential:    cred,
		listener:      listener,
		pid:           os.Getpid(),
	}
	p.admissionCond = sync.NewCond(&p.mu)
	p.creationCond = sync.NewCond(&p.mu)

	if opts.pauseEnabled() {
		p.state = StatePaused
	} else {
		p.state = StateReady
	}

	p.emit(func(l events.Listener) {
		l.OnPoolCreated(events.PoolCreated{PoolID: p.id, Time: time.Now()})
	})
	if p.state == StateReady {
		p.emit(func(l events.Listener) {
			l.OnPoolReady(events.PoolReady{PoolID: p.id, Time: time.Now()})
		})
	}
	return p
}

// ID returns the pool's endpoint id.
func (p *Pool) ID() string { return p.id }

// CheckInterval returns the configured (or default) maintenance cadence,
// for an external scheduler to drive Maintain at.
func (p *Pool) CheckInterval() time.Duration { return p.opts.checkInterval() }

// emit invokes f with the pool's listener. Kept as a method so call
// sites read uniformly; f is expected to build and dispatch one event.
// Calls are serialized per pool by emitMu, and a panic raised by the
// listener is recovered so it never reaches the pool's state machine.
func (p *Pool) emit(f func(events.Listener)) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	defer func() { _ = recover() }()
	f(p.listener)
}

func (p *Pool) nextConnID() uint64 {
	return atomic.AddUint64(&p.nextConnectionID, 1)
}

// checkForkLocked implements spec.md §4.2 step 1 / §4.3's fork
// detection: on a pid mismatch the child inherited file descriptors
// (and the counters describing them) from a different process's
// threads, so this is a full implicit reset() — generation bump, idle
// deque drain, waiter wakeup — not just zeroing activeCheckouts and
// operationCount. Must be called with p.mu held; it releases and
// re-acquires p.mu around the broadcast/close work, matching Reset's
// own locking discipline, so it returns with p.mu held either way.
func (p *Pool) checkForkLocked() {
	pid := os.Getpid()
	if pid == p.pid {
		return
	}
	p.pid = pid
	p.activeCheckouts = 0
	p.operationCount = 0

	p.generation++
	gen := p.generation
	drained := p.idle
	p.idle = nil

	p.mu.Unlock()

	p.admissionCond.Broadcast()
	p.creationCond.Broadcast()

	p.emit(func(l events.Listener) {
		l.OnPoolCleared(events.PoolCleared{PoolID: p.id, Generation: gen, Time: time.Now()})
	})

	for _, c := range drained {
		c.close(p, events.ReasonStale, false)
	}

	p.mu.Lock()
}

// Ready transitions PAUSED → READY, or is a no-op on an already-READY
// pool (spec.md §4.1).
func (p *Pool) Ready() {
	p.mu.Lock()
	becameReady := p.state == StatePaused
	if p.state != StateClosed {
		p.state = StateReady
	}
	p.mu.Unlock()

	p.admissionCond.Broadcast()
	p.creationCond.Broadcast()

	if becameReady {
		p.emit(func(l events.Listener) {
			l.OnPoolReady(events.PoolReady{PoolID: p.id, Time: time.Now()})
		})
	}
}

// Reset bumps the generation, drains the idle deque, wakes every
// waiter, and — unless pause is false — transitions to PAUSED (subject
// to PauseEnabled). This is spec.md §4.1's reset(), used for an explicit
// invalidation. The implicit reset a detected fork triggers is done by
// checkForkLocked, which performs the same generation bump, drain and
// wakeup but never pauses the pool.
func (p *Pool) Reset(pause bool) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}

	wasNonPaused := p.state != StatePaused
	p.generation++
	gen := p.generation

	drained := p.idle
	p.idle = nil

	if pause && p.opts.pauseEnabled() {
		p.state = StatePaused
	}

	p.mu.Unlock()

	p.admissionCond.Broadcast()
	p.creationCond.Broadcast()

	if wasNonPaused {
		p.emit(func(l events.Listener) {
			l.OnPoolCleared(events.PoolCleared{PoolID: p.id, Generation: gen, Time: time.Now()})
		})
	}

	for _, c := range drained {
		c.close(p, events.ReasonStale, false)
	}
}

// Close transitions the pool to CLOSED (terminal), draining and closing
// every connection. Unlike Reset, PoolClosed is emitted after the
// sockets are closed (spec.md §4.1).
func (p *Pool) Close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	drained := p.idle
	p.idle = nil
	p.mu.Unlock()

	p.admissionCond.Broadcast()
	p.creationCond.Broadcast()

	for _, c := range drained {
		c.close(p, events.ReasonPoolClosed, false)
	}

	p.emit(func(l events.Listener) {
		l.OnPoolClosed(events.PoolClosed{PoolID: p.id, Time: time.Now()})
	})
}

// Stats is a point-in-time snapshot of pool-visible counters, used for
// metrics and diagnostics.
type Stats struct {
	PoolID          string
	State           State
	Generation      uint64
	Idle            int
	ActiveCheckouts int
	PendingCreates  int
	Waiters         int
	MaxPoolSize     int
}

// Stats returns a snapshot of the pool's current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		PoolID:          p.id,
		State:           p.state,
		Generation:      p.generation,
		Idle:            len(p.idle),
		ActiveCheckouts: p.activeCheckouts,
		PendingCreates:  p.pendingCreates,
		Waiters:         p.waiters,
		MaxPoolSize:     p.opts.MaxPoolSize,
	}
}

// Checkout is the central operation of spec.md §4.2.
func (p *Pool) Checkout(ctx context.Context) (*Connection, error) {
	p.emit(func(l events.Listener) {
		l.OnCheckOutStarted(events.CheckOutStarted{PoolID: p.id, Time: time.Now()})
	})

	var deadline time.Time
	if p.opts.WaitQueueTimeout > 0 {
		deadline = time.Now().Add(p.opts.WaitQueueTimeout)
	}

	p.mu.Lock()
	p.checkForkLocked()

	if p.state == StateClosed {
		p.mu.Unlock()
		p.failCheckout(events.ReasonPoolClosed)
		return nil, newError(KindPoolClosed, fmt.Sprintf("pool %s is closed", p.id), nil)
	}

	p.operationCount++

	// ── Admission wait ──────────────────────────────────────────────
	maxWaiters := p.opts.maxWaiters()
	if maxWaiters > 0 && p.waiters >= maxWaiters {
		p.operationCount--
		p.mu.Unlock()
		p.failCheckout(events.ReasonError)
		return nil, newError(KindExceededMaxWaiters, fmt.Sprintf("pool %s: max waiters (%d) exceeded", p.id, maxWaiters), nil)
	}

	p.waiters++
	err := p.waitCond(ctx, p.admissionCond, deadline, p.admissionPredicateLocked)
	if err != nil {
		p.waiters--
		p.operationCount--
		p.mu.Unlock()
		p.admissionCond.Signal()
		reason := events.ReasonTimeout
		kind := KindWaitQueueTimeout
		if err != ErrWaitQueueTimeout {
			reason = events.ReasonError
			kind = KindConnectionFailure
		}
		p.failCheckout(reason)
		return nil, newError(kind, fmt.Sprintf("pool %s: waiting for admission", p.id), err)
	}

	if p.state != StateReady {
		p.waiters--
		p.operationCount--
		p.mu.Unlock()
		p.admissionCond.Signal()
		p.failCheckout(events.ReasonConnError)
		return nil, newError(KindPoolPaused, fmt.Sprintf("pool %s is paused", p.id), nil)
	}

	p.activeCheckouts++
	p.waiters--
	p.mu.Unlock()

	conn, failErr := p.acquireConnection(ctx, deadline)
	if failErr != nil {
		p.mu.Lock()
		p.activeCheckouts--
		p.operationCount--
		p.mu.Unlock()
		p.admissionCond.Signal()
		return nil, failErr
	}

	p.emit(func(l events.Listener) {
		l.OnCheckedOut(events.CheckedOut{PoolID: p.id, ConnectionID: conn.ID(), Time: time.Now()})
	})
	return conn, nil
}

// acquireConnection runs spec.md §4.2 steps 5-7: the creation-throttle
// loop, reuse-with-perishability-check, and auth reconciliation.
func (p *Pool) acquireConnection(ctx context.Context, deadline time.Time) (*Connection, error) {
	for {
		p.mu.Lock()
		err := p.waitCond(ctx, p.creationCond, deadline, p.creationPredicateLocked)
		if err != nil {
			p.mu.Unlock()
			p.creationCond.Signal()
			reason := events.ReasonTimeout
			kind := KindWaitQueueTimeout
			if err != ErrWaitQueueTimeout {
				reason = events.ReasonError
				kind = KindConnectionFailure
			}
			p.failCheckout(reason)
			return nil, newError(kind, fmt.Sprintf("pool %s: waiting for creation slot", p.id), err)
		}

		if p.state != StateReady {
			p.mu.Unlock()
			p.failCheckout(events.ReasonConnError)
			return nil, newError(KindPoolPaused, fmt.Sprintf("pool %s is paused", p.id), nil)
		}

		// Reuse takes precedence over creation (spec.md §4.2 tie-break).
		if len(p.idle) > 0 {
			conn := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()

			reason, perished := p.perished(conn)
			if perished {
				conn.close(p, reason, false)
				continue // back to step 5
			}

			if err := p.checkAuth(conn, p.credential); err != nil {
				conn.close(p, events.ReasonError, false)
				p.failCheckout(events.ReasonError)
				return nil, err
			}
			return conn, nil
		}

		p.pendingCreates++
		p.mu.Unlock()

		conn, err := p.createConnection(ctx)

		p.mu.Lock()
		p.pendingCreates--
		p.mu.Unlock()
		p.creationCond.Signal()

		if err != nil {
			p.failCheckout(events.ReasonError)
			return nil, err
		}
		return conn, nil
	}
}

func (p *Pool) failCheckout(reason events.Reason) {
	p.emit(func(l events.Listener) {
		l.OnCheckOutFailed(events.CheckOutFailed{PoolID: p.id, Reason: reason, Time: time.Now()})
	})
}

// Checkin returns a previously-checked-out connection to the pool, per
// spec.md §4.3. Never blocks on I/O.
func (p *Pool) Checkin(conn *Connection) {
	if conn == nil {
		return
	}
	p.emit(func(l events.Listener) {
		l.OnCheckedIn(events.CheckedIn{PoolID: p.id, ConnectionID: conn.ID(), Time: time.Now()})
	})

	p.mu.Lock()
	forked := p.pid != os.Getpid()
	p.checkForkLocked()

	if forked {
		// checkForkLocked already zeroed the counters this checkout was
		// counted in, so the inherited connection is dropped without an
		// unwind.
		p.mu.Unlock()
		conn.close(p, events.ReasonStale, false)
		return
	}

	if p.state == StateClosed {
		p.mu.Unlock()
		conn.close(p, events.ReasonPoolClosed, false)
		p.unwindCheckin()
		return
	}

	if conn.isClosed() {
		p.mu.Unlock()
		p.unwindCheckin()
		return
	}

	if conn.generationOf() != p.currentGenerationLocked() {
		p.mu.Unlock()
		conn.close(p, events.ReasonStale, false)
		p.unwindCheckin()
		return
	}

	conn.markCheckedIn(p.isWritable)
	p.idle = append([]*Connection{conn}, p.idle...)
	p.mu.Unlock()

	p.creationCond.Signal()
	p.unwindCheckin()
}

// currentGenerationLocked must be called with p.mu held.
func (p *Pool) currentGenerationLocked() uint64 { return p.generation }

func (p *Pool) unwindCheckin() {
	p.mu.Lock()
	p.activeCheckouts--
	p.operationCount--
	p.mu.Unlock()
	p.admissionCond.Signal()
}

// Discard removes a connection from the pool permanently, e.g. after the
// caller observes an I/O error. It is equivalent to Checkin followed by
// an immediate perish, without ever making the connection available for
// reuse.
func (p *Pool) Discard(conn *Connection) {
	if conn == nil {
		return
	}
	conn.close(p, events.ReasonError, false)
	p.unwindCheckin()
}
