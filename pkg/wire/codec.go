// Package wire implements the byte-level rules of the X11 wire format:
// fixed-size fields in the connection's byte order, 4-byte alignment of
// variable-length fields, value-lists, count-driven lists and the framing of
// requests and inbound server messages.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for truncated input or inconsistent length
	// fields. A connection that sees it can no longer trust its alignment.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrRequestTooLarge is returned when a request does not fit the length
	// field and big requests are not enabled.
	ErrRequestTooLarge = errors.New("wire: request exceeds maximum length")
)

// Marshaler is implemented by values with a wire form.
type Marshaler interface {
	MarshalWire(e *Encoder)
}

// Unmarshaler is implemented by values that can be read back from the wire.
type Unmarshaler interface {
	UnmarshalWire(d *Decoder) error
}

// MarshalFunc adapts an ordinary function to Marshaler.
type MarshalFunc func(e *Encoder)

func (f MarshalFunc) MarshalWire(e *Encoder) {
	f(e)
}

// Pad returns the number of zero bytes needed to align n to 4.
func Pad(n int) int {
	return (4 - n%4) % 4
}

// Encode returns the wire form of v, zero padded to a multiple of 4 bytes.
func Encode(order binary.ByteOrder, v Marshaler) []byte {
	e := NewEncoder(order, 32)
	v.MarshalWire(e)
	e.Align()
	return e.Bytes()
}

// Decode reads v from b and returns the number of bytes consumed.
func Decode(order binary.ByteOrder, b []byte, v Unmarshaler) (int, error) {
	d := NewDecoder(order, b)
	if err := v.UnmarshalWire(d); err != nil {
		return d.Offset(), err
	}
	return d.Offset(), nil
}

// Encoder appends wire data to a growable buffer.
type Encoder struct {
	order binary.ByteOrder
	buf   []byte
}

func NewEncoder(order binary.ByteOrder, capacity int) *Encoder {
	return &Encoder{order: order, buf: make([]byte, 0, capacity)}
}

func (e *Encoder) Order() binary.ByteOrder {
	return e.order
}

// Bytes returns the encoded bytes. The slice is valid until the next write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) Put8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) Put16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) Put32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt16(v int16) {
	e.Put16(uint16(v))
}

func (e *Encoder) PutInt32(v int32) {
	e.Put32(uint32(v))
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.Put8(1)
		return
	}
	e.Put8(0)
}

// PutBytes appends raw bytes without any length prefix or padding.
func (e *Encoder) PutBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// PutString appends the bytes of s without a length prefix or padding.
func (e *Encoder) PutString(s string) {
	e.buf = append(e.buf, s...)
}

// Skip appends n zero bytes.
func (e *Encoder) Skip(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// Align pads the buffer with zero bytes up to the next 4-byte boundary.
func (e *Encoder) Align() {
	e.Skip(Pad(len(e.buf)))
}

// Decoder reads wire data sequentially from a byte slice.
type Decoder struct {
	order binary.ByteOrder
	data  []byte
	off   int
}

func NewDecoder(order binary.ByteOrder, data []byte) *Decoder {
	return &Decoder{order: order, data: data}
}

func (d *Decoder) Order() binary.ByteOrder {
	return d.order
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

func (d *Decoder) need(n int) (int, error) {
	if n < 0 || d.off+n > len(d.data) {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, d.off, len(d.data)-d.off)
	}
	off := d.off
	d.off += n
	return off, nil
}

func (d *Decoder) Get8() (uint8, error) {
	off, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return d.data[off], nil
}

func (d *Decoder) Get16() (uint16, error) {
	off, err := d.need(2)
	if err != nil {
		return 0, err
	}
	return d.order.Uint16(d.data[off:]), nil
}

func (d *Decoder) Get32() (uint32, error) {
	off, err := d.need(4)
	if err != nil {
		return 0, err
	}
	return d.order.Uint32(d.data[off:]), nil
}

func (d *Decoder) GetInt16() (int16, error) {
	v, err := d.Get16()
	return int16(v), err
}

func (d *Decoder) GetInt32() (int32, error) {
	v, err := d.Get32()
	return int32(v), err
}

func (d *Decoder) GetBool() (bool, error) {
	v, err := d.Get8()
	return v != 0, err
}

// GetBytes returns a copy of the next n bytes.
func (d *Decoder) GetBytes(n int) ([]byte, error) {
	off, err := d.need(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.data[off:off+n])
	return out, nil
}

func (d *Decoder) GetString(n int) (string, error) {
	off, err := d.need(n)
	if err != nil {
		return "", err
	}
	return string(d.data[off : off+n]), nil
}

func (d *Decoder) Skip(n int) error {
	_, err := d.need(n)
	return err
}

// Align skips the padding that follows a variable-length field so the next
// read starts on a 4-byte boundary.
func (d *Decoder) Align() error {
	return d.Skip(Pad(d.off))
}
