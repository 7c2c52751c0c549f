package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// OptionToken identifies a field in a handshake option list, using the
// same token/offset/length encoding as the teacher's TDS Pre-Login
// parser, generalized off that protocol's specific option set.
type OptionToken byte

const (
	OptionVersion       OptionToken = 0x00
	OptionEncryption    OptionToken = 0x01
	OptionMaxDocSize    OptionToken = 0x02
	OptionMaxMsgSize    OptionToken = 0x03
	OptionMaxBatchSize  OptionToken = 0x04
	OptionMaxWireVer    OptionToken = 0x05
	OptionCompression   OptionToken = 0x06
	OptionWritable      OptionToken = 0x07
	OptionSpeculative   OptionToken = 0x08
	OptionTerminator    OptionToken = 0xFF
)

// Option is a single (token, data) pair in a handshake message.
type Option struct {
	Token OptionToken
	Data  []byte
}

// Limits holds the server-negotiated limits a connection carries for the
// rest of its life, per spec.md §3.
type Limits struct {
	MaxDocumentSize int
	MaxMessageSize  int
	MaxBatchSize    int
	MaxWireVersion  int
}

// CompressionContext is an opaque, connection-scoped compression handle
// negotiated during the handshake.
type CompressionContext struct {
	Algorithm string
}

// HandshakeResult is everything the connection entity records after a
// successful handshake (spec.md §4.6 step 3).
type HandshakeResult struct {
	Limits             Limits
	Writable           bool
	Compression        CompressionContext
	SpeculativeAuthOK  bool
}

// BuildOptions serializes a list of options into a handshake payload
// using the (token, offset, length) header block followed by a data
// block, exactly as the teacher's Pre-Login encoding does.
func BuildOptions(opts []Option) []byte {
	headerSize := len(opts)*5 + 1 // +1 for terminator
	var data []byte
	headers := make([]byte, 0, headerSize)
	offset := headerSize

	for _, o := range opts {
		h := make([]byte, 5)
		h[0] = byte(o.Token)
		binary.BigEndian.PutUint16(h[1:3], uint16(offset))
		binary.BigEndian.PutUint16(h[3:5], uint16(len(o.Data)))
		headers = append(headers, h...)
		data = append(data, o.Data...)
		offset += len(o.Data)
	}
	headers = append(headers, byte(OptionTerminator))

	out := make([]byte, 0, len(headers)+len(data))
	out = append(out, headers...)
	out = append(out, data...)
	return out
}

// ParseOptions parses a handshake payload into its options.
func ParseOptions(payload []byte) ([]Option, error) {
	type hdr struct {
		token  OptionToken
		offset uint16
		length uint16
	}
	var headers []hdr
	pos := 0
	for pos < len(payload) {
		token := OptionToken(payload[pos])
		if token == OptionTerminator {
			pos++
			break
		}
		if pos+5 > len(payload) {
			return nil, fmt.Errorf("wire: truncated option header at %d", pos)
		}
		headers = append(headers, hdr{
			token:  token,
			offset: binary.BigEndian.Uint16(payload[pos+1 : pos+3]),
			length: binary.BigEndian.Uint16(payload[pos+3 : pos+5]),
		})
		pos += 5
	}

	opts := make([]Option, 0, len(headers))
	for _, h := range headers {
		end := int(h.offset) + int(h.length)
		if end > len(payload) {
			return nil, fmt.Errorf("wire: option 0x%02x out of bounds (offset=%d len=%d payload=%d)",
				h.token, h.offset, h.length, len(payload))
		}
		data := make([]byte, h.length)
		copy(data, payload[h.offset:end])
		opts = append(opts, Option{Token: h.token, Data: data})
	}
	return opts, nil
}

// uint32Option / parseUint32Option encode/decode a 4-byte big-endian
// integer option value.
func uint32Option(token OptionToken, v int) Option {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return Option{Token: token, Data: b}
}

func parseUint32Option(opts []Option, token OptionToken) (int, bool) {
	for _, o := range opts {
		if o.Token == token && len(o.Data) == 4 {
			return int(binary.BigEndian.Uint32(o.Data)), true
		}
	}
	return 0, false
}

// Handshake performs the capability-negotiation exchange spec.md §4.6
// step 3 describes: send our supported options, read back the server's
// response, and translate it into a HandshakeResult. This is the
// external collaborator spec.md §1 keeps out of pool scope.
func Handshake(conn net.Conn, appName string) (*HandshakeResult, error) {
	req := BuildOptions([]Option{
		{Token: OptionVersion, Data: []byte{1, 0}},
		{Token: OptionEncryption, Data: []byte{0x01}},
	})
	frames := BuildFrames(FrameHandshake, 0, req, MaxFrameSize)
	if err := WriteFrames(conn, frames); err != nil {
		return nil, fmt.Errorf("wire: writing handshake request: %w", err)
	}

	typ, payload, err := ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("wire: reading handshake response: %w", err)
	}
	if typ == FrameError {
		return nil, ParseErrorFrame(payload)
	}
	if typ != FrameHandshake && typ != FrameReply {
		return nil, fmt.Errorf("wire: unexpected handshake response type 0x%02x", byte(typ))
	}

	opts, err := ParseOptions(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: parsing handshake response: %w", err)
	}

	result := &HandshakeResult{}
	if v, ok := parseUint32Option(opts, OptionMaxDocSize); ok {
		result.Limits.MaxDocumentSize = v
	}
	if v, ok := parseUint32Option(opts, OptionMaxMsgSize); ok {
		result.Limits.MaxMessageSize = v
	}
	if v, ok := parseUint32Option(opts, OptionMaxBatchSize); ok {
		result.Limits.MaxBatchSize = v
	}
	if v, ok := parseUint32Option(opts, OptionMaxWireVer); ok {
		result.Limits.MaxWireVersion = v
	}
	for _, o := range opts {
		switch o.Token {
		case OptionWritable:
			result.Writable = len(o.Data) == 1 && o.Data[0] == 1
		case OptionCompression:
			result.Compression = CompressionContext{Algorithm: string(o.Data)}
		case OptionSpeculative:
			result.SpeculativeAuthOK = len(o.Data) == 1 && o.Data[0] == 1
		}
	}
	return result, nil
}
