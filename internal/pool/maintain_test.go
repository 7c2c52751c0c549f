package pool

import (
	"context"
	"testing"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/wire"
)

func TestMaintainPrunesIdleConnectionsPastMaxIdleTime(t *testing.T) {
	opts := testOptions()
	opts.MaxIdleTime = 20 * time.Millisecond
	p := newTestPool(t, opts)
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	p.Checkin(conn)

	time.Sleep(30 * time.Millisecond)
	p.Maintain(context.Background(), p.Stats().Generation, auth.Credential{})

	if got := p.Stats().Idle; got != 0 {
		t.Fatalf("expected idle connection pruned by maintain, got %d idle", got)
	}
}

func TestMaintainLeavesFreshIdleConnectionsAlone(t *testing.T) {
	opts := testOptions()
	opts.MaxIdleTime = time.Minute
	p := newTestPool(t, opts)
	defer p.Close()

	conn, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	p.Checkin(conn)

	p.Maintain(context.Background(), p.Stats().Generation, auth.Credential{})

	if got := p.Stats().Idle; got != 1 {
		t.Fatalf("expected the fresh idle connection to survive maintain, got %d idle", got)
	}
}

func TestMaintainFillsToMinPoolSize(t *testing.T) {
	opts := testOptions()
	opts.MinPoolSize = 2
	p := newTestPool(t, opts)
	defer p.Close()

	p.Maintain(context.Background(), p.Stats().Generation, auth.Credential{})

	if got := p.Stats().Idle; got != 2 {
		t.Fatalf("expected 2 idle connections after min-fill, got %d", got)
	}
}

func TestMaintainIsNoopWhenPoolIsPaused(t *testing.T) {
	p := New(testEndpoint(), testOptions(), pipeDialer{writable: true}, wire.NewFrameCodec(0), auth.PasswordAuthenticator{}, auth.Credential{}, nil)
	defer p.Close()

	p.Maintain(context.Background(), p.Stats().Generation, auth.Credential{})
	if got := p.Stats().Idle; got != 0 {
		t.Fatalf("expected no connections created while the pool is paused, got %d idle", got)
	}
}

func TestMaintainAbandonsFillAfterStaleGeneration(t *testing.T) {
	opts := testOptions()
	opts.MinPoolSize = 2
	p := newTestPool(t, opts)
	defer p.Close()

	// A stale referenceGeneration (as if the caller's world view predates
	// a concurrent Reset) must stop the fill immediately.
	p.Maintain(context.Background(), p.Stats().Generation+1, auth.Credential{})

	if got := p.Stats().Idle; got != 0 {
		t.Fatalf("expected no fill against a stale reference generation, got %d idle", got)
	}
}
