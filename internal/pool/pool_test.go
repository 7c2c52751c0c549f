package pool

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/dialer"
	"github.com/joao-brasil/connpool/internal/wire"
	"github.com/joao-brasil/connpool/pkg/address"
)

// pipeDialer hands out net.Pipe connections backed by a goroutine that
// speaks just enough of the wire handshake/command protocol for these
// tests: one handshake exchange, then an "ok" reply to every command.
type pipeDialer struct {
	writable bool
}

func (d pipeDialer) Dial(ctx context.Context, ep *address.Endpoint, opts dialer.Options) (net.Conn, error) {
	client, server := net.Pipe()
	go serveFake(server, d.writable)
	return client, nil
}

func serveFake(conn net.Conn, writable bool) {
	defer conn.Close()

	if _, _, err := wire.ReadMessage(conn); err != nil {
		return
	}
	writableByte := byte(0)
	if writable {
		writableByte = 1
	}
	resp := wire.BuildOptions([]wire.Option{
		{Token: wire.OptionWritable, Data: []byte{writableByte}},
	})
	if err := wire.WriteFrames(conn, wire.BuildFrames(wire.FrameHandshake, 0, resp, wire.MaxFrameSize)); err != nil {
		return
	}

	for {
		typ, _, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		if typ != wire.FrameCommand {
			return
		}
		if err := wire.WriteFrames(conn, wire.BuildFrames(wire.FrameReply, 0, []byte("ok"), wire.MaxFrameSize)); err != nil {
			return
		}
	}
}

func testOptions() Options {
	return Options{
		MaxPoolSize:      2,
		MaxConnecting:    2,
		ConnectTimeout:   time.Second,
		WaitQueueTimeout: 200 * time.Millisecond,
	}
}

func testEndpoint() *address.Endpoint {
	return &address.Endpoint{ID: "ep1", Host: "localhost", Port: 5432}
}

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	p := New(testEndpoint(), opts, pipeDialer{writable: true}, wire.NewFrameCodec(0), auth.PasswordAuthenticator{}, auth.Credential{}, nil)
	p.Ready()
	return p
}

func TestCheckoutCheckinRoundTrip(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if conn.ID() == 0 {
		t.Fatalf("expected nonzero connection id")
	}
	p.Checkin(conn)

	stats := p.Stats()
	if stats.Idle != 1 {
		t.Fatalf("expected 1 idle connection after checkin, got %d", stats.Idle)
	}
	if stats.ActiveCheckouts != 0 {
		t.Fatalf("expected 0 active checkouts after checkin, got %d", stats.ActiveCheckouts)
	}
}

func TestCheckoutReusesIdleConnection(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout 1: %v", err)
	}
	p.Checkin(c1)

	c2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout 2: %v", err)
	}
	if c2.ID() != c1.ID() {
		t.Fatalf("expected reuse of connection %d, got %d", c1.ID(), c2.ID())
	}
	p.Checkin(c2)
}

func TestCheckoutRespectsMaxPoolSize(t *testing.T) {
	opts := testOptions()
	opts.MaxPoolSize = 1
	opts.WaitQueueTimeout = 50 * time.Millisecond
	p := newTestPool(t, opts)
	defer p.Close()

	c1, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout 1: %v", err)
	}

	_, err = p.Checkout(context.Background())
	if err == nil {
		t.Fatalf("expected a wait queue timeout with the pool exhausted")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindWaitQueueTimeout {
		t.Fatalf("expected KindWaitQueueTimeout, got %v", err)
	}

	p.Checkin(c1)
}

func TestCheckoutFailsWhenPaused(t *testing.T) {
	p := New(testEndpoint(), testOptions(), pipeDialer{writable: true}, wire.NewFrameCodec(0), auth.PasswordAuthenticator{}, auth.Credential{}, nil)
	defer p.Close()

	_, err := p.Checkout(context.Background())
	if err == nil {
		t.Fatalf("expected an error checking out of a paused pool")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindPoolPaused {
		t.Fatalf("expected KindPoolPaused, got %v", err)
	}
}

func TestResetBumpsGenerationAndDrainsIdle(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	p.Checkin(conn)

	before := p.Stats().Generation
	p.Reset(false)
	after := p.Stats().Generation

	if after != before+1 {
		t.Fatalf("expected generation to increment by 1, got %d -> %d", before, after)
	}
	if p.Stats().Idle != 0 {
		t.Fatalf("expected idle deque drained after reset, got %d", p.Stats().Idle)
	}
}

func TestStaleConnectionIsNotReusedAfterReset(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p.Reset(false) // bumps generation while conn is checked out
	p.Checkin(conn) // should be discarded as stale, not reused

	if p.Stats().Idle != 0 {
		t.Fatalf("expected stale connection to be discarded, not pooled")
	}
}

func TestCloseIsIdempotentAndRejectsCheckout(t *testing.T) {
	p := newTestPool(t, testOptions())
	p.Close()
	p.Close() // must not panic or double-emit

	_, err := p.Checkout(context.Background())
	if err == nil {
		t.Fatalf("expected checkout on a closed pool to fail")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindPoolClosed {
		t.Fatalf("expected KindPoolClosed, got %v", err)
	}
}

// simulateFork overwrites the pool's stored pid so the next ingress
// (Checkout/Checkin) observes a mismatch exactly as it would in a child
// process after a real fork, per spec.md §8's "Fork midway" scenario.
func simulateFork(p *Pool) {
	p.mu.Lock()
	p.pid = -1
	p.mu.Unlock()
}

func TestForkDetectionAtCheckoutResetsGenerationAndDropsIdle(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	ctx := context.Background()
	conn, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	p.Checkin(conn)
	if p.Stats().Idle != 1 {
		t.Fatalf("expected 1 idle connection before simulated fork, got %d", p.Stats().Idle)
	}

	before := p.Stats().Generation
	simulateFork(p)

	c2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout after simulated fork: %v", err)
	}
	defer p.Checkin(c2)

	if after := p.Stats().Generation; after != before+1 {
		t.Fatalf("expected fork detection to bump generation by 1, got %d -> %d", before, after)
	}
	if p.Stats().Idle != 0 {
		t.Fatalf("expected the pre-fork idle connection to be dropped by fork detection, got %d idle", p.Stats().Idle)
	}
	if c2.ID() == conn.ID() {
		t.Fatalf("expected a freshly dialed connection after fork, got the pre-fork connection id %d reused", c2.ID())
	}
}

func TestForkDetectionAtCheckinDropsInheritedConnection(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	simulateFork(p)
	p.Checkin(conn) // should be dropped as stale, not pooled for reuse

	if p.Stats().Idle != 0 {
		t.Fatalf("expected checkin after simulated fork to drop the connection, got %d idle", p.Stats().Idle)
	}
	if p.Stats().ActiveCheckouts != 0 {
		t.Fatalf("expected active checkouts to unwind to 0 after checkin, got %d", p.Stats().ActiveCheckouts)
	}
}
