package wire

import (
	"fmt"
	"net"
)

// Codec is the wire-protocol request/response collaborator spec.md §1
// and §6 name: "invoked on an established connection", kept entirely
// outside the pool's concerns. Any exception here must close the
// connection before propagating (spec.md §6), which is the caller's
// (pool's) responsibility, not the codec's.
type Codec interface {
	Command(conn net.Conn, streamID uint16, name string, args []byte) ([]byte, error)
	ReceiveMessage(conn net.Conn, streamID uint16) ([]byte, error)
}

// FrameCodec is the concrete Codec implementation built on this
// package's frame format.
type FrameCodec struct {
	MaxFrameSize int
}

// NewFrameCodec returns a FrameCodec using size as the max on-wire frame
// size, falling back to MaxFrameSize when size is non-positive.
func NewFrameCodec(size int) *FrameCodec {
	if size <= 0 {
		size = MaxFrameSize
	}
	return &FrameCodec{MaxFrameSize: size}
}

// Command sends a named command with an argument payload and waits for
// the matching reply, translating a server-reported error into a *Error.
func (c *FrameCodec) Command(conn net.Conn, streamID uint16, name string, args []byte) ([]byte, error) {
	payload := make([]byte, 0, len(name)+1+len(args))
	payload = append(payload, byte(len(name)))
	payload = append(payload, []byte(name)...)
	payload = append(payload, args...)

	frames := BuildFrames(FrameCommand, streamID, payload, c.MaxFrameSize)
	if err := WriteFrames(conn, frames); err != nil {
		return nil, fmt.Errorf("wire: writing command %q: %w", name, err)
	}

	return c.ReceiveMessage(conn, streamID)
}

// ReceiveMessage reads one full message for the given stream, returning
// the assembled reply payload, or the server's structured error.
func (c *FrameCodec) ReceiveMessage(conn net.Conn, streamID uint16) ([]byte, error) {
	typ, payload, err := ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("wire: receiving message on stream %d: %w", streamID, err)
	}
	if typ == FrameError {
		return nil, ParseErrorFrame(payload)
	}
	return payload, nil
}
