// Package registry keeps one pool.Pool per configured endpoint and
// drives each one's periodic maintenance pass. It deliberately carries
// no routing/selection logic: callers name the endpoint id they want,
// per spec.md's Non-goal of multi-endpoint routing.
//
// Grounded in the teacher's internal/pool/manager.go (Manager), stripped
// of the bucket-selection helpers and given an explicit maintenance
// loop per pool, since spec.md §4.4 requires maintain() to be invoked by
// an external scheduler rather than running as an internal ticker
// inside the pool itself.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/dialer"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/pool"
	"github.com/joao-brasil/connpool/internal/wire"
	"github.com/joao-brasil/connpool/pkg/address"
)

// Registry owns one pool.Pool per endpoint id and the maintenance
// goroutine that drives each.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*pool.Pool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Registry with one pool per endpoint, all sharing the same
// dialer, wire codec, authenticator, and event listener.
func New(ctx context.Context, endpoints []address.Endpoint, listener events.Listener) (*Registry, error) {
	r := &Registry{pools: make(map[string]*pool.Pool, len(endpoints))}

	d := dialer.NetDialer{}
	codec := wire.NewFrameCodec(0)
	authr := auth.PasswordAuthenticator{}

	for i := range endpoints {
		ep := &endpoints[i]
		opts := optionsFromEndpoint(ep)
		cred := auth.Credential{Mechanism: "password", Username: ep.Username, Password: ep.Password}

		p := pool.New(ep, opts, d, codec, authr, cred, listener)
		r.pools[ep.ID] = p
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.startMaintenance(ctx)

	log.Printf("[registry] initialized %d endpoint pools", len(r.pools))
	return r, nil
}

func optionsFromEndpoint(ep *address.Endpoint) pool.Options {
	return pool.Options{
		MaxPoolSize:       ep.MaxPoolSize,
		MinPoolSize:       ep.MinPoolSize,
		MaxConnecting:     ep.MaxConnecting,
		MaxIdleTime:       ep.MaxIdleTime,
		WaitQueueTimeout:  ep.WaitQueueTimeout,
		WaitQueueMultiple: ep.WaitQueueMultiple,
		ConnectTimeout:    ep.ConnectTimeout,
		SocketTimeout:     ep.SocketTimeout,
		PauseEnabled:      ep.PauseEnabled,
		CheckInterval:     ep.CheckInterval,
		AppName:           "connpool",
	}
}

// startMaintenance runs one Maintain pass per pool at its configured
// check interval, stopping when ctx is cancelled.
func (r *Registry) startMaintenance(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.pools {
		r.wg.Add(1)
		go func(id string, p *pool.Pool) {
			defer r.wg.Done()
			ticker := time.NewTicker(p.CheckInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats := p.Stats()
					p.Maintain(ctx, stats.Generation, auth.Credential{})
				}
			}
		}(id, p)
	}
}

// Checkout obtains a connection from the named endpoint's pool.
func (r *Registry) Checkout(ctx context.Context, endpointID string) (*pool.Connection, error) {
	r.mu.RLock()
	p, ok := r.pools[endpointID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("registry: unknown endpoint %q", endpointID)
	}
	return p.Checkout(ctx)
}

// Checkin returns a connection to the named endpoint's pool.
func (r *Registry) Checkin(endpointID string, conn *pool.Connection) {
	if conn == nil {
		return
	}
	r.mu.RLock()
	p, ok := r.pools[endpointID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	p.Checkin(conn)
}

// Discard permanently removes a connection from the named endpoint's
// pool rather than returning it for reuse.
func (r *Registry) Discard(endpointID string, conn *pool.Connection) {
	if conn == nil {
		return
	}
	r.mu.RLock()
	p, ok := r.pools[endpointID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	p.Discard(conn)
}

// Pool returns the pool for an endpoint id, if any.
func (r *Registry) Pool(endpointID string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[endpointID]
	return p, ok
}

// Stats returns a snapshot of every pool's counters.
func (r *Registry) Stats() []pool.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]pool.Stats, 0, len(r.pools))
	for _, p := range r.pools {
		stats = append(stats, p.Stats())
	}
	return stats
}

// Close stops maintenance and closes every pool.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		p.Close()
	}
	r.pools = nil

	log.Println("[registry] closed")
}
