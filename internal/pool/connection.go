package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/dialer"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/wire"
)

// Connection is the per-connection entity of spec.md §3: an opaque
// byte-stream handle plus metadata. It records its pool's id but holds
// no pointer to the pool, so it never extends the pool's lifetime
// (spec.md §9 "Cyclic references"); methods that emit events take the
// *Pool as an argument.
type Connection struct {
	mu sync.Mutex

	id         uint64
	poolID     string
	generation uint64

	conn  net.Conn
	codec wire.Codec

	lastCheckinTime time.Time
	ready           bool // authenticated and published
	writable        bool
	limits          wire.Limits
	compression     wire.CompressionContext
	authset         map[string]bool

	closed bool
}

// ID returns the connection's pool-scoped identifier.
func (c *Connection) ID() uint64 { return c.id }

// Limits returns the negotiated wire limits.
func (c *Connection) Limits() wire.Limits { return c.limits }

// Writable reports the last-known writable flag from the handshake.
func (c *Connection) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable
}

// Conn exposes the underlying byte-stream for use by a wire codec.
func (c *Connection) Conn() net.Conn { return c.conn }

// generationOf returns the connection's creation-time generation,
// compared at checkin/checkout against the pool's current generation
// (spec.md §3 invariant 4, §9 "Generation-as-epoch").
func (c *Connection) generationOf() uint64 { return c.generation }

// createConnection runs spec.md §4.6: allocate id, dial, handshake,
// authenticate. On any failure the partial connection is closed and the
// error is translated into the §7 taxonomy.
func (p *Pool) createConnection(ctx context.Context) (*Connection, error) {
	id := p.nextConnID()
	p.emit(func(l events.Listener) {
		l.OnConnectionCreated(events.ConnectionCreated{PoolID: p.id, ConnectionID: id, Time: time.Now()})
	})

	dialOpts := dialer.Options{
		ConnectTimeout:  p.opts.ConnectTimeout,
		TLSEnabled:      p.endpoint.TLSEnabled,
		TLSServerName:   p.endpoint.Host,
		TLSInsecureSkip: p.endpoint.TLSInsecureSkip,
	}
	netConn, err := p.dialer.Dial(ctx, p.endpoint, dialOpts)
	if err != nil {
		p.emit(func(l events.Listener) {
			l.OnConnectionClosed(events.ConnectionClosed{PoolID: p.id, ConnectionID: id, Reason: events.ReasonError, Time: time.Now()})
		})
		return nil, newError(KindConnectionFailure, fmt.Sprintf("dialing connection %d", id), err)
	}

	c := &Connection{
		id:              id,
		poolID:          p.id,
		conn:            netConn,
		codec:           p.codec,
		authset:         make(map[string]bool),
		lastCheckinTime: time.Now(),
	}

	p.mu.Lock()
	c.generation = p.generation
	p.mu.Unlock()

	result, err := wire.Handshake(netConn, p.opts.AppName)
	if err != nil {
		c.closeLocked(events.ReasonError, p)
		return nil, newError(KindConnectionFailure, fmt.Sprintf("handshaking connection %d", id), err)
	}
	c.limits = result.Limits
	c.writable = result.Writable
	c.compression = result.Compression

	writable := result.Writable
	p.mu.Lock()
	p.isWritable = &writable
	p.mu.Unlock()

	if err := p.checkAuth(c, p.credential); err != nil {
		c.closeLocked(events.ReasonError, p)
		return nil, err
	}

	return c, nil
}

// checkAuth runs each credential not already in authset, per spec.md
// §4.6 step 4, emitting ConnectionReady on the first successful
// authentication.
func (p *Pool) checkAuth(c *Connection, cred auth.Credential) error {
	c.mu.Lock()
	already := c.authset[cred.Key()]
	wasReady := c.ready
	c.mu.Unlock()

	if already || cred.Username == "" {
		return nil
	}

	if err := p.authenticator.Authenticate(c.conn, c.codec, cred); err != nil {
		return newError(KindConnectionFailure, fmt.Sprintf("authenticating connection %d", c.id), err)
	}

	c.mu.Lock()
	c.authset[cred.Key()] = true
	becameReady := !wasReady
	c.ready = true
	c.mu.Unlock()

	if becameReady {
		p.emit(func(l events.Listener) {
			l.OnConnectionReady(events.ConnectionReady{PoolID: p.id, ConnectionID: c.id, Time: time.Now()})
		})
	}
	return nil
}

// close is idempotent: it flips the closed flag, closes the underlying
// stream, and emits ConnectionClosed unless reason is suppressed
// (spec.md §4.6 "Close").
func (c *Connection) close(p *Pool, reason events.Reason, suppress bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.conn.Close()

	if !suppress {
		p.emit(func(l events.Listener) {
			l.OnConnectionClosed(events.ConnectionClosed{PoolID: p.id, ConnectionID: c.id, Reason: reason, Time: time.Now()})
		})
	}
}

// closeLocked is a convenience used during creation, before the
// connection is ever exposed to a caller.
func (c *Connection) closeLocked(reason events.Reason, p *Pool) {
	c.close(p, reason, false)
}

// markCheckedIn stamps the checkin time and, if the pool's writable
// state is known, copies it onto the connection (spec.md §4.3). A nil
// poolWritable leaves the connection's handshake-derived value alone.
func (c *Connection) markCheckedIn(poolWritable *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheckinTime = time.Now()
	if poolWritable != nil {
		c.writable = *poolWritable
	}
}

func (c *Connection) idleDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastCheckinTime)
}

func (c *Connection) checkinTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCheckinTime
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// dueForLivenessCheck reports whether the probe should run, per spec.md
// §4.5: "only run if checkIntervalSeconds is zero OR last-checkin is
// older than it". The gate is relative to lastCheckinTime, not to the
// previous probe, so a freshly checked-in connection is never probed
// until it has actually sat idle for the configured interval.
func (c *Connection) dueForLivenessCheck(interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	return c.idleDuration() >= interval
}
