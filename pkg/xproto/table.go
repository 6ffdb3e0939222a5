package xproto

import (
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/wire"
)

// Table is the set of event and error codes owned by the core protocol.
type Table struct {
	Events map[uint8]EventDecoder
	Errors map[uint8]ErrorDecoder
	// MaxEvent and MaxError are the highest codes the table owns. A code in
	// range without a decoder is delivered as RawEvent or RawError.
	MaxEvent uint8
	MaxError uint8
}

// OwnsEvent reports whether code (synthetic bit cleared) belongs to t.
func (t Table) OwnsEvent(code uint8) bool {
	return code >= 2 && code <= t.MaxEvent && code != wire.GenericEventCode
}

func (t Table) OwnsError(code uint8) bool {
	return code >= 1 && code <= t.MaxError
}

// CoreTable returns the core protocol's decoders. Core events use codes 2
// to 34 and core errors 1 to 127; extensions are assigned codes above.
func CoreTable() Table {
	return Table{
		Events:   coreEvents(),
		Errors:   coreErrors(),
		MaxEvent: 34,
		MaxError: 127,
	}
}

// RawEvent is an event whose code is known to be valid but which has no
// typed decoder. Data holds the full message.
type RawEvent struct {
	EventHeader
	Data []byte
}

func (ev *RawEvent) MarshalWire(e *wire.Encoder) {
	e.PutBytes(ev.Data)
}

func DecodeRawEvent(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	return &RawEvent{EventHeader: h, Data: append([]byte(nil), msg...)}, nil
}

// RawError is an error code without a typed decoder.
type RawError struct{ ErrorHeader }

var DecodeRawError = NewErrorDecoder("Unknown", func(h ErrorHeader) Error { return &RawError{h} })

// GenericEvent is a generic (code 35) event without a typed decoder. Data
// holds the bytes after the event type, extra length included.
type GenericEvent struct {
	EventHeader
	ExtensionOpcode uint8
	EventType       uint16
	Data            []byte
}

func (ev *GenericEvent) MarshalWire(e *wire.Encoder) {
	e.Put8(ev.responseType())
	e.Put8(ev.ExtensionOpcode)
	e.Put16(ev.Sequence)
	extra := len(ev.Data) + 2 - 24
	if extra < 0 {
		extra = 0
	}
	e.Put32(uint32((extra + wire.Pad(extra)) / 4))
	e.Put16(ev.EventType)
	e.PutBytes(ev.Data)
	e.Skip(wire.Pad(len(ev.Data) + 2))
	if n := 10 + len(ev.Data) + wire.Pad(len(ev.Data)+2); n < wire.MessageSize {
		e.Skip(wire.MessageSize - n)
	}
}

func DecodeGenericEvent(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, opcode, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	if err = d.Skip(4); err != nil {
		return nil, err
	}
	evType, err := d.Get16()
	if err != nil {
		return nil, err
	}
	data, err := d.GetBytes(d.Remaining())
	if err != nil {
		return nil, err
	}
	return &GenericEvent{EventHeader: h, ExtensionOpcode: opcode, EventType: evType, Data: data}, nil
}
