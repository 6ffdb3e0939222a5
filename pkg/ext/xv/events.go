package xv

import (
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Event offsets from the first event the server assigns.
const (
	VideoNotify uint8 = 0
	PortNotify  uint8 = 1
)

// Error offsets from the first error the server assigns.
const (
	BadPort     uint8 = 0
	BadEncoding uint8 = 1
	BadControl  uint8 = 2
)

type (
	PortError     struct{ xproto.ErrorHeader }
	EncodingError struct{ xproto.ErrorHeader }
	ControlError  struct{ xproto.ErrorHeader }
)

// VideoNotifyEvent reports a change in the video shown in a drawable.
type VideoNotifyEvent struct {
	xproto.EventHeader
	// Reason is one of the VideoNotifyReason values.
	Reason   uint8
	Time     xproto.Timestamp
	Drawable xproto.Drawable
	Port     xproto.Port
}

func (ev *VideoNotifyEvent) MarshalWire(e *wire.Encoder) {
	xproto.WriteEvent(e, &ev.EventHeader, ev.Reason, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Time))
		e.Put32(ev.Drawable.Uint32())
		e.Put32(ev.Port.Uint32())
	})
}

func decodeVideoNotify(order binary.ByteOrder, msg []byte) (xproto.Event, error) {
	d := wire.NewDecoder(order, msg)
	h, reason, err := xproto.ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	v, err := wire.Get32List(d, 3)
	if err != nil {
		return nil, err
	}
	return &VideoNotifyEvent{
		EventHeader: h,
		Reason:      reason,
		Time:        xproto.Timestamp(v[0]),
		Drawable:    xproto.Drawable(v[1]),
		Port:        xproto.Port(v[2]),
	}, nil
}

// PortNotifyEvent reports a changed port attribute.
type PortNotifyEvent struct {
	xproto.EventHeader
	Time      xproto.Timestamp
	Port      xproto.Port
	Attribute xproto.Atom
	Value     int32
}

func (ev *PortNotifyEvent) MarshalWire(e *wire.Encoder) {
	xproto.WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Time))
		e.Put32(ev.Port.Uint32())
		e.Put32(ev.Attribute.Uint32())
		e.PutInt32(ev.Value)
	})
}

func decodePortNotify(order binary.ByteOrder, msg []byte) (xproto.Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := xproto.ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	v, err := wire.Get32List(d, 4)
	if err != nil {
		return nil, err
	}
	return &PortNotifyEvent{
		EventHeader: h,
		Time:        xproto.Timestamp(v[0]),
		Port:        xproto.Port(v[1]),
		Attribute:   xproto.Atom(v[2]),
		Value:       int32(v[3]),
	}, nil
}
