package pool

import (
	"context"
	"testing"
	"time"

	"github.com/joao-brasil/connpool/internal/auth"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/wire"
)

func TestCreateConnectionNegotiatesWritableAndUpdatesPool(t *testing.T) {
	p := New(testEndpoint(), testOptions(), pipeDialer{writable: false}, wire.NewFrameCodec(0), auth.PasswordAuthenticator{}, auth.Credential{}, nil)
	p.Ready()
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	if conn.Writable() {
		t.Fatalf("expected connection to negotiate writable=false")
	}
	if w := p.currentWritable(); w == nil || *w {
		t.Fatalf("expected pool.isWritable to reflect the handshake result (false), got %v", w)
	}
}

func TestCheckAuthSkipsWhenNoUsernameConfigured(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	if err := p.checkAuth(conn, auth.Credential{}); err != nil {
		t.Fatalf("expected no-op auth with empty credential, got %v", err)
	}
	if conn.ready {
		t.Fatalf("expected ready to stay false when no credential is configured")
	}
}

func TestCheckAuthIsIdempotentPerCredential(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	cred := auth.Credential{Mechanism: "password", Username: "u", Password: "p"}
	if err := p.checkAuth(conn, cred); err != nil {
		t.Fatalf("first checkAuth: %v", err)
	}
	if !conn.ready {
		t.Fatalf("expected connection to be ready after first successful auth")
	}

	// Re-running with the same credential finds it already in authset and
	// returns before sending another authenticate command. The fake server
	// would answer such a command with "ok" as well, so this checks only
	// that the second call succeeds.
	if err := p.checkAuth(conn, cred); err != nil {
		t.Fatalf("second checkAuth: %v", err)
	}
}

func TestMarkCheckedInLeavesWritableAloneWhenPoolUnknown(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	conn.writable = true
	conn.markCheckedIn(nil)
	if !conn.writable {
		t.Fatalf("expected writable to be left alone by a nil poolWritable")
	}

	falseVal := false
	conn.markCheckedIn(&falseVal)
	if conn.writable {
		t.Fatalf("expected writable to be overwritten by a non-nil poolWritable")
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}

	conn.close(p, events.ReasonError, false)
	conn.close(p, events.ReasonError, false) // must not panic or double-close

	if !conn.isClosed() {
		t.Fatalf("expected connection to be marked closed")
	}
}

func TestIdleDurationTracksLastCheckin(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	conn.markCheckedIn(nil)
	if d := conn.idleDuration(); d < 0 || d > time.Second {
		t.Fatalf("expected a small idle duration right after checkin, got %s", d)
	}
}

func TestDueForLivenessCheckIsRelativeToLastCheckin(t *testing.T) {
	p := newTestPool(t, testOptions())
	defer p.Close()

	conn, err := p.createConnection(context.Background())
	if err != nil {
		t.Fatalf("createConnection: %v", err)
	}
	defer conn.close(p, events.ReasonError, true)

	conn.markCheckedIn(nil)
	if conn.dueForLivenessCheck(50 * time.Millisecond) {
		t.Fatalf("expected liveness check not due immediately after checkin")
	}
	time.Sleep(60 * time.Millisecond)
	if !conn.dueForLivenessCheck(50 * time.Millisecond) {
		t.Fatalf("expected liveness check to become due once idle time exceeds the interval")
	}
	// Without an intervening checkin, the check stays due.
	if !conn.dueForLivenessCheck(50 * time.Millisecond) {
		t.Fatalf("expected liveness check to remain due without a fresh checkin")
	}
	if !conn.dueForLivenessCheck(0) {
		t.Fatalf("expected a zero interval to always be due")
	}
}
