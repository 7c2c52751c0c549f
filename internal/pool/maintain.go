package pool

import (
	"context"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/events"
)

// Maintain runs one pass of spec.md §4.4's background maintenance: idle
// pruning followed by min-fill. It is invoked periodically by an
// external scheduler (internal/registry), never by an internal ticker,
// so that tests can drive it deterministically. Grounded in the
// teacher's maintenanceLoop/evictStale/ensureMinIdle, restructured here
// from a self-scheduled loop into one externally-triggered pass per
// spec.md's design.
func (p *Pool) Maintain(ctx context.Context, referenceGeneration uint64, cred auth.Credential) {
	p.mu.Lock()
	if p.state != StateReady {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.pruneIdle()
	p.fillMinIdle(ctx, referenceGeneration, cred)
}

// pruneIdle pops and closes connections from the back of the idle deque
// (oldest, since the front is MRU) while they exceed MaxIdleTime.
func (p *Pool) pruneIdle() {
	if p.opts.MaxIdleTime <= 0 {
		return
	}
	for {
		p.mu.Lock()
		if len(p.idle) == 0 {
			p.mu.Unlock()
			return
		}
		last := len(p.idle) - 1
		oldest := p.idle[last]
		if oldest.idleDuration() <= p.opts.MaxIdleTime {
			p.mu.Unlock()
			return
		}
		p.idle = p.idle[:last]
		p.mu.Unlock()

		oldest.close(p, events.ReasonIdle, false)
		p.creationCond.Signal()
	}
}

// fillMinIdle creates connections until idleCount+activeCheckouts+
// pendingCreates reaches MinPoolSize, respecting the same creation-throttle
// accounting checkout uses so maintenance can never violate the pool's
// invariants. If the pool resets mid-fill, the newly created connection
// is discarded as STALE and filling stops — the caller's view of the
// world (referenceGeneration) is out of date.
func (p *Pool) fillMinIdle(ctx context.Context, referenceGeneration uint64, cred auth.Credential) {
	if p.opts.MinPoolSize <= 0 {
		return
	}

	for {
		p.mu.Lock()
		if p.state != StateReady {
			p.mu.Unlock()
			return
		}
		if p.generation != referenceGeneration {
			p.mu.Unlock()
			return
		}
		current := len(p.idle) + p.activeCheckouts + p.pendingCreates
		if current >= p.opts.MinPoolSize {
			p.mu.Unlock()
			return
		}
		if p.pendingCreates >= p.opts.maxConnecting() {
			p.mu.Unlock()
			return
		}
		p.pendingCreates++
		p.mu.Unlock()

		conn, err := p.createConnection(ctx)

		p.mu.Lock()
		p.pendingCreates--
		staleGeneration := p.generation != referenceGeneration
		p.mu.Unlock()
		p.creationCond.Signal()

		if err != nil {
			return
		}

		if staleGeneration {
			conn.close(p, events.ReasonStale, false)
			return
		}

		if cred.Username != "" {
			if err := p.checkAuth(conn, cred); err != nil {
				conn.close(p, events.ReasonError, false)
				return
			}
		}

		conn.markCheckedIn(p.currentWritable())
		p.mu.Lock()
		p.idle = append(p.idle, conn) // fill appends at back: these are not MRU
		p.mu.Unlock()
		p.creationCond.Signal()
	}
}

func (p *Pool) currentWritable() *bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isWritable
}
