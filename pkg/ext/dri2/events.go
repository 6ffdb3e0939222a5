package dri2

import (
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// BufferSwapCompleteEvent reports that a scheduled swap happened.
type BufferSwapCompleteEvent struct {
	xproto.EventHeader
	EventType uint16
	Drawable  xproto.Drawable
	UST       uint64
	MSC       uint64
	SBC       uint32
}

func (ev *BufferSwapCompleteEvent) MarshalWire(e *wire.Encoder) {
	xproto.WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put16(ev.EventType)
		e.Skip(2)
		e.Put32(ev.Drawable.Uint32())
		uh, ul := split(ev.UST)
		mh, ml := split(ev.MSC)
		wire.Put32List(e, []uint32{uh, ul, mh, ml, ev.SBC})
	})
}

func decodeBufferSwapComplete(order binary.ByteOrder, msg []byte) (xproto.Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := xproto.ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &BufferSwapCompleteEvent{EventHeader: h}
	if ev.EventType, err = d.Get16(); err != nil {
		return nil, err
	}
	if err := d.Skip(2); err != nil {
		return nil, err
	}
	v, err := wire.Get32List(d, 6)
	if err != nil {
		return nil, err
	}
	ev.Drawable = xproto.Drawable(v[0])
	ev.UST = join(v[1], v[2])
	ev.MSC = join(v[3], v[4])
	ev.SBC = v[5]
	return ev, nil
}

// InvalidateBuffersEvent tells the client to fetch its buffers again.
type InvalidateBuffersEvent struct {
	xproto.EventHeader
	Drawable xproto.Drawable
}

func (ev *InvalidateBuffersEvent) MarshalWire(e *wire.Encoder) {
	xproto.WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(ev.Drawable.Uint32())
	})
}

func decodeInvalidateBuffers(order binary.ByteOrder, msg []byte) (xproto.Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := xproto.ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	drawable, err := d.Get32()
	if err != nil {
		return nil, err
	}
	return &InvalidateBuffersEvent{EventHeader: h, Drawable: xproto.Drawable(drawable)}, nil
}
