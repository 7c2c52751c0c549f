// Package wire implements the wire-protocol collaborator spec.md §6
// names as external to the pool: framing, capability handshake, and the
// command/receiveMessage operations a checked-out connection uses.
//
// The framing shape (8-byte header, big-endian length, sequence of
// packets terminated by an end-of-message flag) is carried over from the
// teacher's TDS packet parser, generalized away from that specific wire
// protocol: no SQL token parsing, no pinning detection, just frames.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType identifies the kind of payload a Frame carries.
type FrameType byte

const (
	FrameHandshake FrameType = 0x01
	FrameAuth      FrameType = 0x02
	FrameCommand   FrameType = 0x03
	FrameReply     FrameType = 0x04
	FrameError     FrameType = 0x05
)

// Status flags, set on the last frame of a logical message.
const (
	StatusNormal byte = 0x00
	StatusEOM    byte = 0x01
)

// HeaderSize is the fixed size of a Frame header.
const HeaderSize = 8

// MaxFrameSize bounds a single on-wire frame, matching the negotiated
// default before a handshake has run.
const MaxFrameSize = 32768

// Header is the fixed 8-byte frame header.
//
//	Byte 0:   Type
//	Byte 1:   Status (StatusEOM on the last frame of a message)
//	Byte 2-3: Length, including header, big-endian
//	Byte 4-5: StreamID, big-endian
//	Byte 6:   Sequence, wraps per message
//	Byte 7:   Reserved, always 0
type Header struct {
	Type     FrameType
	Status   byte
	Length   uint16
	StreamID uint16
	Sequence byte
}

// IsEOM reports whether this is the last frame of a message.
func (h *Header) IsEOM() bool { return h.Status&StatusEOM != 0 }

// PayloadLength returns the number of payload bytes following the header.
func (h *Header) PayloadLength() int {
	if int(h.Length) <= HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

// Marshal serializes the header into an 8-byte slice.
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.Status
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.StreamID)
	buf[6] = h.Sequence
	return buf
}

// ReadHeader reads an 8-byte header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return ParseHeader(buf)
}

// ParseHeader parses an 8-byte buffer into a Header.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("wire: header too short: %d bytes", len(buf))
	}
	h := &Header{
		Type:     FrameType(buf[0]),
		Status:   buf[1],
		Length:   binary.BigEndian.Uint16(buf[2:4]),
		StreamID: binary.BigEndian.Uint16(buf[4:6]),
		Sequence: buf[6],
	}
	if h.Length < HeaderSize {
		return nil, fmt.Errorf("wire: length %d less than header size", h.Length)
	}
	if h.Length > MaxFrameSize {
		return nil, fmt.Errorf("wire: length %d exceeds max %d", h.Length, MaxFrameSize)
	}
	return h, nil
}

// ReadFrame reads one complete frame (header + payload) from r.
func ReadFrame(r io.Reader) (*Header, []byte, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}
	frame := make([]byte, hdr.Length)
	copy(frame[:HeaderSize], hdr.Marshal())
	if n := hdr.PayloadLength(); n > 0 {
		if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
			return nil, nil, fmt.Errorf("wire: reading payload (%d bytes): %w", n, err)
		}
	}
	return hdr, frame, nil
}

// ReadMessage reads a full logical message (one or more frames through
// EOM), returning the assembled payload.
func ReadMessage(r io.Reader) (FrameType, []byte, error) {
	var (
		typ     FrameType
		payload []byte
	)
	for {
		hdr, frame, err := ReadFrame(r)
		if err != nil {
			return 0, nil, err
		}
		if typ == 0 {
			typ = hdr.Type
		}
		if n := hdr.PayloadLength(); n > 0 {
			payload = append(payload, frame[HeaderSize:]...)
		}
		if hdr.IsEOM() {
			break
		}
	}
	return typ, payload, nil
}

// BuildFrames splits payload into one or more frames of at most
// frameSize bytes each (including header).
func BuildFrames(typ FrameType, streamID uint16, payload []byte, frameSize int) [][]byte {
	if frameSize <= HeaderSize {
		frameSize = 4096
	}
	maxPayload := frameSize - HeaderSize

	var frames [][]byte
	var seq byte
	for len(payload) > 0 || len(frames) == 0 {
		chunk := maxPayload
		if chunk > len(payload) {
			chunk = len(payload)
		}
		status := StatusNormal
		if chunk >= len(payload) {
			status = StatusEOM
		}
		hdr := Header{Type: typ, Status: status, Length: uint16(HeaderSize + chunk), StreamID: streamID, Sequence: seq}
		f := make([]byte, HeaderSize+chunk)
		copy(f[:HeaderSize], hdr.Marshal())
		copy(f[HeaderSize:], payload[:chunk])
		frames = append(frames, f)
		payload = payload[chunk:]
		seq++
		if chunk == 0 {
			break
		}
	}
	return frames
}

// WriteFrames writes raw frame bytes to w in order.
func WriteFrames(w io.Writer, frames [][]byte) error {
	for _, f := range frames {
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}
