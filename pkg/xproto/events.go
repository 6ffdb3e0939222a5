package xproto

import (
	"encoding/binary"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/wire"
)

const (
	KeyPress        uint8 = 2
	KeyRelease      uint8 = 3
	ButtonPress     uint8 = 4
	ButtonRelease   uint8 = 5
	MotionNotify    uint8 = 6
	FocusIn         uint8 = 9
	FocusOut        uint8 = 10
	KeymapNotify    uint8 = 11
	Expose          uint8 = 12
	DestroyNotify   uint8 = 17
	MapNotify       uint8 = 19
	ConfigureNotify uint8 = 22
	PropertyNotify  uint8 = 28
	ClientMessage   uint8 = 33
)

// InputEvent is the layout shared by the key, button and motion events.
type InputEvent struct {
	EventHeader
	// Detail is the keycode, the button or the motion hint.
	Detail     uint8
	Time       Timestamp
	Root       Window
	Event      Window
	Child      Window
	RootX      int16
	RootY      int16
	EventX     int16
	EventY     int16
	State      uint16
	SameScreen bool
}

func (ev *InputEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, ev.Detail, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Time))
		e.Put32(uint32(ev.Root))
		e.Put32(uint32(ev.Event))
		e.Put32(uint32(ev.Child))
		e.PutInt16(ev.RootX)
		e.PutInt16(ev.RootY)
		e.PutInt16(ev.EventX)
		e.PutInt16(ev.EventY)
		e.Put16(ev.State)
		e.PutBool(ev.SameScreen)
	})
}

func decodeInputEvent(order binary.ByteOrder, msg []byte) (InputEvent, error) {
	d := wire.NewDecoder(order, msg)
	h, detail, err := ReadEventHead(d)
	if err != nil {
		return InputEvent{}, err
	}
	ev := InputEvent{EventHeader: h, Detail: detail}
	var v uint32
	if v, err = d.Get32(); err != nil {
		return ev, err
	}
	ev.Time = Timestamp(v)
	for _, w := range []*Window{&ev.Root, &ev.Event, &ev.Child} {
		if v, err = d.Get32(); err != nil {
			return ev, err
		}
		*w = Window(v)
	}
	for _, p := range []*int16{&ev.RootX, &ev.RootY, &ev.EventX, &ev.EventY} {
		if *p, err = d.GetInt16(); err != nil {
			return ev, err
		}
	}
	if ev.State, err = d.Get16(); err != nil {
		return ev, err
	}
	ev.SameScreen, err = d.GetBool()
	return ev, err
}

type (
	KeyPressEvent      struct{ InputEvent }
	KeyReleaseEvent    struct{ InputEvent }
	ButtonPressEvent   struct{ InputEvent }
	ButtonReleaseEvent struct{ InputEvent }
	MotionNotifyEvent  struct{ InputEvent }
)

func inputDecoder(build func(InputEvent) Event) EventDecoder {
	return func(order binary.ByteOrder, msg []byte) (Event, error) {
		ev, err := decodeInputEvent(order, msg)
		if err != nil {
			return nil, err
		}
		return build(ev), nil
	}
}

// FocusEvent is the layout shared by FocusIn and FocusOut.
type FocusEvent struct {
	EventHeader
	Detail uint8
	Event  Window
	Mode   uint8
}

func (ev *FocusEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, ev.Detail, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Event))
		e.Put8(ev.Mode)
	})
}

type (
	FocusInEvent  struct{ FocusEvent }
	FocusOutEvent struct{ FocusEvent }
)

func focusDecoder(build func(FocusEvent) Event) EventDecoder {
	return func(order binary.ByteOrder, msg []byte) (Event, error) {
		d := wire.NewDecoder(order, msg)
		h, detail, err := ReadEventHead(d)
		if err != nil {
			return nil, err
		}
		ev := FocusEvent{EventHeader: h, Detail: detail}
		w, err := d.Get32()
		if err != nil {
			return nil, err
		}
		ev.Event = Window(w)
		if ev.Mode, err = d.Get8(); err != nil {
			return nil, err
		}
		return build(ev), nil
	}
}

// KeymapNotifyEvent follows EnterNotify and FocusIn. Its wire form has no
// sequence number: Keys fills every byte after the code, holding the key
// bitmap from keycode 8 upwards.
type KeymapNotifyEvent struct {
	EventHeader
	Keys [31]byte
}

func (*KeymapNotifyEvent) sequenceless() {}

func (ev *KeymapNotifyEvent) MarshalWire(e *wire.Encoder) {
	e.Put8(ev.responseType())
	e.PutBytes(ev.Keys[:])
}

func decodeKeymapNotify(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	code, err := d.Get8()
	if err != nil {
		return nil, err
	}
	keys, err := d.GetBytes(31)
	if err != nil {
		return nil, err
	}
	ev := &KeymapNotifyEvent{EventHeader: EventHeader{
		Code:      code &^ wire.SyntheticBit,
		Synthetic: code&wire.SyntheticBit != 0,
	}}
	copy(ev.Keys[:], keys)
	return ev, nil
}

type ExposeEvent struct {
	EventHeader
	Window Window
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
	// Count is the number of Expose events that follow for the same window.
	Count uint16
}

func (ev *ExposeEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Window))
		e.Put16(ev.X)
		e.Put16(ev.Y)
		e.Put16(ev.Width)
		e.Put16(ev.Height)
		e.Put16(ev.Count)
	})
}

func decodeExpose(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &ExposeEvent{EventHeader: h}
	w, err := d.Get32()
	if err != nil {
		return nil, err
	}
	ev.Window = Window(w)
	for _, p := range []*uint16{&ev.X, &ev.Y, &ev.Width, &ev.Height, &ev.Count} {
		if *p, err = d.Get16(); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

type DestroyNotifyEvent struct {
	EventHeader
	Event  Window
	Window Window
}

func (ev *DestroyNotifyEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Event))
		e.Put32(uint32(ev.Window))
	})
}

func decodeDestroyNotify(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &DestroyNotifyEvent{EventHeader: h}
	ws, err := wire.Get32List(d, 2)
	if err != nil {
		return nil, err
	}
	ev.Event, ev.Window = Window(ws[0]), Window(ws[1])
	return ev, nil
}

type MapNotifyEvent struct {
	EventHeader
	Event            Window
	Window           Window
	OverrideRedirect bool
}

func (ev *MapNotifyEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Event))
		e.Put32(uint32(ev.Window))
		e.PutBool(ev.OverrideRedirect)
	})
}

func decodeMapNotify(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &MapNotifyEvent{EventHeader: h}
	ws, err := wire.Get32List(d, 2)
	if err != nil {
		return nil, err
	}
	ev.Event, ev.Window = Window(ws[0]), Window(ws[1])
	if ev.OverrideRedirect, err = d.GetBool(); err != nil {
		return nil, err
	}
	return ev, nil
}

type ConfigureNotifyEvent struct {
	EventHeader
	Event            Window
	Window           Window
	AboveSibling     Window
	X                int16
	Y                int16
	Width            uint16
	Height           uint16
	BorderWidth      uint16
	OverrideRedirect bool
}

func (ev *ConfigureNotifyEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Event))
		e.Put32(uint32(ev.Window))
		e.Put32(uint32(ev.AboveSibling))
		e.PutInt16(ev.X)
		e.PutInt16(ev.Y)
		e.Put16(ev.Width)
		e.Put16(ev.Height)
		e.Put16(ev.BorderWidth)
		e.PutBool(ev.OverrideRedirect)
	})
}

func decodeConfigureNotify(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &ConfigureNotifyEvent{EventHeader: h}
	ws, err := wire.Get32List(d, 3)
	if err != nil {
		return nil, err
	}
	ev.Event, ev.Window, ev.AboveSibling = Window(ws[0]), Window(ws[1]), Window(ws[2])
	if ev.X, err = d.GetInt16(); err != nil {
		return nil, err
	}
	if ev.Y, err = d.GetInt16(); err != nil {
		return nil, err
	}
	for _, p := range []*uint16{&ev.Width, &ev.Height, &ev.BorderWidth} {
		if *p, err = d.Get16(); err != nil {
			return nil, err
		}
	}
	if ev.OverrideRedirect, err = d.GetBool(); err != nil {
		return nil, err
	}
	return ev, nil
}

const (
	PropertyNewValue uint8 = 0
	PropertyDelete   uint8 = 1
)

type PropertyNotifyEvent struct {
	EventHeader
	Window Window
	Atom   Atom
	Time   Timestamp
	State  uint8
}

func (ev *PropertyNotifyEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, 0, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Window))
		e.Put32(uint32(ev.Atom))
		e.Put32(uint32(ev.Time))
		e.Put8(ev.State)
	})
}

func decodePropertyNotify(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, _, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &PropertyNotifyEvent{EventHeader: h}
	vs, err := wire.Get32List(d, 3)
	if err != nil {
		return nil, err
	}
	ev.Window, ev.Atom, ev.Time = Window(vs[0]), Atom(vs[1]), Timestamp(vs[2])
	if ev.State, err = d.Get8(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ClientMessageData is the 20-byte payload of a ClientMessage. Which arm
// holds the data is given by the event's format field, not by the payload.
type ClientMessageData struct {
	Data8  [20]uint8
	Data16 [10]uint16
	Data32 [5]uint32
}

// DecodeClientMessageData reads the arm selected by format (8, 16 or 32).
func DecodeClientMessageData(d *wire.Decoder, format uint8) (ClientMessageData, error) {
	var c ClientMessageData
	switch format {
	case 8:
		b, err := d.GetBytes(20)
		if err != nil {
			return c, err
		}
		copy(c.Data8[:], b)
	case 16:
		for i := range c.Data16 {
			v, err := d.Get16()
			if err != nil {
				return c, err
			}
			c.Data16[i] = v
		}
	case 32:
		for i := range c.Data32 {
			v, err := d.Get32()
			if err != nil {
				return c, err
			}
			c.Data32[i] = v
		}
	default:
		return c, fmt.Errorf("%w: client message format %d", wire.ErrMalformed, format)
	}
	return c, nil
}

// Encode writes the arm selected by format.
func (c ClientMessageData) Encode(e *wire.Encoder, format uint8) {
	switch format {
	case 8:
		e.PutBytes(c.Data8[:])
	case 16:
		for _, v := range c.Data16 {
			e.Put16(v)
		}
	default:
		for _, v := range c.Data32 {
			e.Put32(v)
		}
	}
}

type ClientMessageEvent struct {
	EventHeader
	Format uint8
	Window Window
	Type   Atom
	Data   ClientMessageData
}

func (ev *ClientMessageEvent) MarshalWire(e *wire.Encoder) {
	WriteEvent(e, &ev.EventHeader, ev.Format, func(e *wire.Encoder) {
		e.Put32(uint32(ev.Window))
		e.Put32(uint32(ev.Type))
		ev.Data.Encode(e, ev.Format)
	})
}

func decodeClientMessage(order binary.ByteOrder, msg []byte) (Event, error) {
	d := wire.NewDecoder(order, msg)
	h, format, err := ReadEventHead(d)
	if err != nil {
		return nil, err
	}
	ev := &ClientMessageEvent{EventHeader: h, Format: format}
	vs, err := wire.Get32List(d, 2)
	if err != nil {
		return nil, err
	}
	ev.Window, ev.Type = Window(vs[0]), Atom(vs[1])
	if ev.Data, err = DecodeClientMessageData(d, format); err != nil {
		return nil, err
	}
	return ev, nil
}

func coreEvents() map[uint8]EventDecoder {
	return map[uint8]EventDecoder{
		KeyPress:        inputDecoder(func(ev InputEvent) Event { return &KeyPressEvent{ev} }),
		KeyRelease:      inputDecoder(func(ev InputEvent) Event { return &KeyReleaseEvent{ev} }),
		ButtonPress:     inputDecoder(func(ev InputEvent) Event { return &ButtonPressEvent{ev} }),
		ButtonRelease:   inputDecoder(func(ev InputEvent) Event { return &ButtonReleaseEvent{ev} }),
		MotionNotify:    inputDecoder(func(ev InputEvent) Event { return &MotionNotifyEvent{ev} }),
		FocusIn:         focusDecoder(func(ev FocusEvent) Event { return &FocusInEvent{ev} }),
		FocusOut:        focusDecoder(func(ev FocusEvent) Event { return &FocusOutEvent{ev} }),
		KeymapNotify:    decodeKeymapNotify,
		Expose:          decodeExpose,
		DestroyNotify:   decodeDestroyNotify,
		MapNotify:       decodeMapNotify,
		ConfigureNotify: decodeConfigureNotify,
		PropertyNotify:  decodePropertyNotify,
		ClientMessage:   decodeClientMessage,
	}
}
