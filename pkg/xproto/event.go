package xproto

import (
	"encoding/binary"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/wire"
)

// Event is every event a connection can deliver: the core events, the
// events of registered extensions and AsyncError. The set is closed: a type
// becomes an Event only by embedding EventHeader.
type Event interface {
	Header() *EventHeader
	isEvent()
}

// EventHeader is the part every event shares.
type EventHeader struct {
	// Code is the response type with the synthetic bit cleared. For extension
	// events it is the absolute code, first event of the extension included.
	Code uint8
	// Synthetic is set for events delivered through SendEvent.
	Synthetic bool
	// Sequence is the wire sequence number, Seq its widened form as
	// assigned by the connection that received the event.
	Sequence uint16
	Seq      uint64
	// Extension is empty for core events.
	Extension string
}

func (h *EventHeader) Header() *EventHeader {
	return h
}

func (*EventHeader) isEvent() {}

// Sequenceless is implemented by events whose wire form carries no sequence
// number. The receiving connection stamps them with the last sequence it
// has seen.
type Sequenceless interface {
	Event
	sequenceless()
}

func (h *EventHeader) responseType() uint8 {
	if h.Synthetic {
		return h.Code | wire.SyntheticBit
	}
	return h.Code
}

// EventDecoder builds an event from one complete message.
type EventDecoder func(order binary.ByteOrder, msg []byte) (Event, error)

// AsyncError carries the error of a request nobody was waiting on. It is
// delivered on the event stream in arrival order.
type AsyncError struct {
	EventHeader
	Err Error
}

func (e *AsyncError) String() string {
	return fmt.Sprintf("async %v", e.Err)
}

// NewAsyncError wraps err as an event that shares its sequence number.
func NewAsyncError(err Error) *AsyncError {
	d := err.Details()
	return &AsyncError{
		EventHeader: EventHeader{
			Code:      wire.ResponseError,
			Sequence:  d.Sequence,
			Seq:       d.Seq,
			Extension: d.Extension,
		},
		Err: err,
	}
}

// ReadEventHead reads the first four bytes common to the 32-byte events:
// code, a per-event detail byte and the sequence number.
func ReadEventHead(d *wire.Decoder) (EventHeader, uint8, error) {
	code, err := d.Get8()
	if err != nil {
		return EventHeader{}, 0, err
	}
	detail, err := d.Get8()
	if err != nil {
		return EventHeader{}, 0, err
	}
	seq, err := d.Get16()
	if err != nil {
		return EventHeader{}, 0, err
	}
	return EventHeader{
		Code:      code &^ wire.SyntheticBit,
		Synthetic: code&wire.SyntheticBit != 0,
		Sequence:  seq,
	}, detail, nil
}

// WriteEvent encodes the common head of h, calls body for the rest and pads
// the result to 32 bytes.
func WriteEvent(e *wire.Encoder, h *EventHeader, detail uint8, body func(e *wire.Encoder)) {
	start := e.Len()
	e.Put8(h.responseType())
	e.Put8(detail)
	e.Put16(h.Sequence)
	body(e)
	if n := e.Len() - start; n < wire.MessageSize {
		e.Skip(wire.MessageSize - n)
	}
}
