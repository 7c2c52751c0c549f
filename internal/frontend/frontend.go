// Package frontend is the demonstration TCP front end: it accepts client
// connections, checks out one pooled connection per client session from
// internal/registry, relays bytes in both directions, and checks the
// connection back in (or discards it on error) when the client
// disconnects.
//
// Grounded in the teacher's internal/proxy/listener.go (accept loop,
// graceful Stop, activeSessions counter) and the byte-relay half of
// internal/proxy/handler.go's Session. The Pre-Login-specific handshake
// relay, pinning detection, and router/database-name session-to-bucket
// resolution are dropped: this front end takes an explicit endpoint id
// per spec.md's multi-endpoint-routing Non-goal, and the pool's own
// internal/wire collaborator — not the front end — owns the handshake.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joao-brasil/connpool/internal/registry"
)

// Server listens for client connections and relays each one to a
// checked-out pool connection for a fixed endpoint id.
type Server struct {
	listenAddr string
	endpointID string
	registry   *registry.Registry

	listener net.Listener
	cancel   context.CancelFunc

	activeSessions atomic.Int64
	wg             sync.WaitGroup
	done           chan struct{}
}

// New builds a Server that relays to endpointID via reg.
func New(listenAddr, endpointID string, reg *registry.Registry) *Server {
	return &Server{
		listenAddr: listenAddr,
		endpointID: endpointID,
		registry:   reg,
		done:       make(chan struct{}),
	}
}

// Start begins accepting client connections.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("frontend: listen on %s: %w", s.listenAddr, err)
	}
	s.listener = listener

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	log.Printf("[frontend] listening on %s, relaying to endpoint %q", s.listenAddr, s.endpointID)
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.done)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if isListenerClosed(err) {
				log.Printf("[frontend] listener closed")
				return
			}
			log.Printf("[frontend] accept error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		s.activeSessions.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.activeSessions.Add(-1)
			s.handle(ctx, conn)
		}()
	}
}

// handle checks out one pool connection for the lifetime of a client
// session and relays bytes bidirectionally until either side closes.
func (s *Server) handle(ctx context.Context, clientConn net.Conn) {
	defer clientConn.Close()

	backendConn, err := s.registry.Checkout(ctx, s.endpointID)
	if err != nil {
		log.Printf("[frontend] checkout failed for endpoint %q: %v", s.endpointID, err)
		return
	}

	failed := relay(clientConn, backendConn.Conn())

	if failed {
		s.registry.Discard(s.endpointID, backendConn)
	} else {
		s.registry.Checkin(s.endpointID, backendConn)
	}
}

// relay copies bytes in both directions until one side closes, and
// reports whether either direction ended in a non-EOF error (signaling
// the backend connection should be discarded rather than reused).
func relay(client, backend net.Conn) bool {
	var wg sync.WaitGroup
	var failed atomic.Bool
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := io.Copy(backend, client); err != nil && !isConnectionClosed(err) {
			failed.Store(true)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := io.Copy(client, backend); err != nil && !isConnectionClosed(err) {
			failed.Store(true)
		}
	}()

	wg.Wait()
	return failed.Load()
}

// Stop stops accepting new connections and waits for active sessions to
// finish, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("[frontend] shutting down (active sessions: %d)", s.activeSessions.Load())

	if s.listener != nil {
		s.listener.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Printf("[frontend] all sessions closed gracefully")
	case <-ctx.Done():
		log.Printf("[frontend] shutdown timeout — some sessions may have been interrupted")
	}
	return nil
}

// ActiveSessions returns the number of sessions currently being relayed.
func (s *Server) ActiveSessions() int64 {
	return s.activeSessions.Load()
}

func isListenerClosed(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Err.Error() == "use of closed network connection"
	}
	return false
}

func isConnectionClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
