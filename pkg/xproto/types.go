package xproto

import "github.com/fr3shw3b/xwire/pkg/wire"

type Point struct {
	X int16
	Y int16
}

func (p Point) MarshalWire(e *wire.Encoder) {
	e.PutInt16(p.X)
	e.PutInt16(p.Y)
}

func (p *Point) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if p.X, err = d.GetInt16(); err != nil {
		return err
	}
	p.Y, err = d.GetInt16()
	return err
}

type Rectangle struct {
	X      int16
	Y      int16
	Width  uint16
	Height uint16
}

func (r Rectangle) MarshalWire(e *wire.Encoder) {
	e.PutInt16(r.X)
	e.PutInt16(r.Y)
	e.Put16(r.Width)
	e.Put16(r.Height)
}

func (r *Rectangle) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if r.X, err = d.GetInt16(); err != nil {
		return err
	}
	if r.Y, err = d.GetInt16(); err != nil {
		return err
	}
	if r.Width, err = d.Get16(); err != nil {
		return err
	}
	r.Height, err = d.Get16()
	return err
}

// Str is the length-prefixed string used in lists of names: one length
// byte followed by the bytes, with no padding between elements.
type Str string

func (s Str) MarshalWire(e *wire.Encoder) {
	e.Put8(uint8(len(s)))
	e.PutString(string(s))
}

func (s *Str) UnmarshalWire(d *wire.Decoder) error {
	n, err := d.Get8()
	if err != nil {
		return err
	}
	v, err := d.GetString(int(n))
	if err != nil {
		return err
	}
	*s = Str(v)
	return nil
}

// Window attribute value-list bits, in wire order.
const (
	CWBackPixmap       uint32 = 1 << 0
	CWBackPixel        uint32 = 1 << 1
	CWBorderPixmap     uint32 = 1 << 2
	CWBorderPixel      uint32 = 1 << 3
	CWBitGravity       uint32 = 1 << 4
	CWWinGravity       uint32 = 1 << 5
	CWBackingStore     uint32 = 1 << 6
	CWBackingPlanes    uint32 = 1 << 7
	CWBackingPixel     uint32 = 1 << 8
	CWOverrideRedirect uint32 = 1 << 9
	CWSaveUnder        uint32 = 1 << 10
	CWEventMask        uint32 = 1 << 11
	CWDontPropagate    uint32 = 1 << 12
	CWColormap         uint32 = 1 << 13
	CWCursor           uint32 = 1 << 14
)

// ConfigureWindow value-list bits. The mask is 16 bits on the wire.
const (
	ConfigWindowX           uint32 = 1 << 0
	ConfigWindowY           uint32 = 1 << 1
	ConfigWindowWidth       uint32 = 1 << 2
	ConfigWindowHeight      uint32 = 1 << 3
	ConfigWindowBorderWidth uint32 = 1 << 4
	ConfigWindowSibling     uint32 = 1 << 5
	ConfigWindowStackMode   uint32 = 1 << 6
)

const (
	EventMaskKeyPress        uint32 = 1 << 0
	EventMaskKeyRelease      uint32 = 1 << 1
	EventMaskButtonPress     uint32 = 1 << 2
	EventMaskButtonRelease   uint32 = 1 << 3
	EventMaskPointerMotion   uint32 = 1 << 6
	EventMaskExposure        uint32 = 1 << 15
	EventMaskStructureNotify uint32 = 1 << 17
	EventMaskFocusChange     uint32 = 1 << 21
	EventMaskPropertyChange  uint32 = 1 << 22
)

const (
	WindowClassCopyFromParent uint16 = 0
	WindowClassInputOutput    uint16 = 1
	WindowClassInputOnly      uint16 = 2
)

const (
	PropModeReplace uint8 = 0
	PropModePrepend uint8 = 1
	PropModeAppend  uint8 = 2
)

// Predefined atoms used by this module and its tools.
const (
	AtomAny      Atom = 0
	AtomAtom     Atom = 4
	AtomCardinal Atom = 6
	AtomString   Atom = 31
	AtomWMName   Atom = 39
)
