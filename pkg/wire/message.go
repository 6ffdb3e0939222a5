package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// MessageSize is the fixed size of errors, events and reply headers.
	MessageSize = 32

	ResponseError uint8 = 0
	ResponseReply uint8 = 1
	// GenericEventCode marks an event whose length field (bytes 4..8)
	// declares additional 4-byte units beyond the first 32 bytes.
	GenericEventCode uint8 = 35
	// SyntheticBit is set on events delivered through SendEvent.
	SyntheticBit uint8 = 0x80

	// DefaultMaxRequestUnits is the largest length a request header can carry
	// without the BIG-REQUESTS extension.
	DefaultMaxRequestUnits uint32 = 0xffff
	// DefaultMaxMessageBytes bounds the size of a single inbound message.
	DefaultMaxMessageBytes = 256 << 20
)

// Request is one unframed request: the major opcode, the second header byte
// (a minor opcode for extensions, request data for the core) and the body
// that follows the 4-byte header. The body is encoded in the connection's
// byte order when the request is dispatched.
type Request struct {
	Name  string
	Major uint8
	Data  uint8
	Body  Marshaler
}

// Raw is a request body that is already encoded.
type Raw []byte

func (r Raw) MarshalWire(e *Encoder) {
	e.PutBytes(r)
}

// Limits describes the request lengths a connection may put on the wire.
type Limits struct {
	// MaxUnits is the maximum request length in 4-byte units.
	MaxUnits uint32
	// BigRequests enables the extended length form for requests longer than
	// 0xffff units.
	BigRequests bool
}

func DefaultLimits() Limits {
	return Limits{MaxUnits: DefaultMaxRequestUnits}
}

// AppendTo encodes r onto buf. The body is padded to 4 bytes and the length
// field counts the header too.
func (r Request) AppendTo(buf []byte, order binary.ByteOrder, limits Limits) ([]byte, error) {
	var body []byte
	if r.Body != nil {
		e := NewEncoder(order, 32)
		r.Body.MarshalWire(e)
		body = e.Bytes()
	}
	bodyLen := len(body) + Pad(len(body))
	units := uint64(bodyLen/4) + 1
	maxUnits := uint64(limits.MaxUnits)
	if maxUnits == 0 {
		maxUnits = uint64(DefaultMaxRequestUnits)
	}

	var head [8]byte
	head[0] = r.Major
	head[1] = r.Data
	switch {
	case units <= 0xffff && units <= maxUnits:
		order.PutUint16(head[2:4], uint16(units))
		buf = append(buf, head[:4]...)
	case limits.BigRequests && units+1 <= maxUnits && units+1 <= 0xffffffff:
		// Length 0 announces a 32-bit length that includes itself.
		order.PutUint16(head[2:4], 0)
		order.PutUint32(head[4:8], uint32(units+1))
		buf = append(buf, head[:8]...)
	default:
		return buf, fmt.Errorf("%w: %s is %d units, limit %d", ErrRequestTooLarge, r.Name, units, maxUnits)
	}
	buf = append(buf, body...)
	for i := len(body); i < bodyLen; i++ {
		buf = append(buf, 0)
	}
	return buf, nil
}

// Encode returns the framed bytes of r.
func (r Request) Encode(order binary.ByteOrder, limits Limits) ([]byte, error) {
	return r.AppendTo(make([]byte, 0, 64), order, limits)
}

// IsGenericEvent reports whether the first byte of a message marks a
// generic event.
func IsGenericEvent(responseType uint8) bool {
	return responseType&^SyntheticBit == GenericEventCode
}

// ExtraLength returns the number of additional bytes a message declares
// beyond its first 32. Errors and ordinary events have none.
func ExtraLength(order binary.ByteOrder, head []byte) (int, error) {
	if len(head) < MessageSize {
		return 0, fmt.Errorf("%w: message header is %d bytes", ErrMalformed, len(head))
	}
	if head[0] != ResponseReply && !IsGenericEvent(head[0]) {
		return 0, nil
	}
	n := uint64(order.Uint32(head[4:8])) * 4
	if n > math.MaxInt-MessageSize {
		return 0, fmt.Errorf("%w: message declares %d extra bytes", ErrMalformed, n)
	}
	return int(n), nil
}

// ReadMessage reads exactly one server message from r. The returned slice
// holds the full message: 32 bytes for errors and ordinary events, 32 plus
// the declared extra length for replies and generic events.
func ReadMessage(r io.Reader, order binary.ByteOrder, maxBytes int) ([]byte, error) {
	head := make([]byte, MessageSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	extra, err := ExtraLength(order, head)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	if extra > maxBytes-MessageSize {
		return nil, fmt.Errorf("%w: message declares %d extra bytes, limit %d", ErrMalformed, extra, maxBytes-MessageSize)
	}
	if extra == 0 {
		return head, nil
	}
	msg := make([]byte, MessageSize+extra)
	copy(msg, head)
	if _, err := io.ReadFull(r, msg[MessageSize:]); err != nil {
		return nil, err
	}
	return msg, nil
}

// ReplyDecoder returns a decoder positioned after the 8-byte reply header
// (type, data byte, sequence, length) together with the data byte.
func ReplyDecoder(order binary.ByteOrder, msg []byte) (*Decoder, uint8, error) {
	if len(msg) < MessageSize || msg[0] != ResponseReply {
		return nil, 0, fmt.Errorf("%w: not a reply", ErrMalformed)
	}
	extra, err := ExtraLength(order, msg)
	if err != nil {
		return nil, 0, err
	}
	if len(msg) != MessageSize+extra {
		return nil, 0, fmt.Errorf("%w: reply is %d bytes, header declares %d", ErrMalformed, len(msg), MessageSize+extra)
	}
	d := NewDecoder(order, msg)
	d.off = 8
	return d, msg[1], nil
}
