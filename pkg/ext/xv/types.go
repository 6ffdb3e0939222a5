package xv

import (
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Adaptor type bits.
const (
	TypeInputMask  uint8 = 1
	TypeOutputMask uint8 = 2
	TypeVideoMask  uint8 = 4
	TypeStillMask  uint8 = 8
	TypeImageMask  uint8 = 16
)

const (
	AttributeFlagGettable uint32 = 1
	AttributeFlagSettable uint32 = 2
)

const (
	VideoNotifyReasonStarted   uint8 = 1
	VideoNotifyReasonStopped   uint8 = 2
	VideoNotifyReasonBusy      uint8 = 3
	VideoNotifyReasonPreempted uint8 = 4
	VideoNotifyReasonHardError uint8 = 5
)

const (
	GrabPortStatusSuccess        uint8 = 1
	GrabPortStatusBadExtension   uint8 = 2
	GrabPortStatusAlreadyGrabbed uint8 = 3
	GrabPortStatusInvalidTime    uint8 = 4
	GrabPortStatusBadReply       uint8 = 5
	GrabPortStatusBadAlloc       uint8 = 6
)

type Rational struct {
	Numerator   int32
	Denominator int32
}

func (r Rational) MarshalWire(e *wire.Encoder) {
	e.PutInt32(r.Numerator)
	e.PutInt32(r.Denominator)
}

func (r *Rational) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if r.Numerator, err = d.GetInt32(); err != nil {
		return err
	}
	r.Denominator, err = d.GetInt32()
	return err
}

// Format is a visual an adaptor can render to.
type Format struct {
	Visual uint32
	Depth  uint8
}

func (f Format) MarshalWire(e *wire.Encoder) {
	e.Put32(f.Visual)
	e.Put8(f.Depth)
	e.Skip(3)
}

func (f *Format) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if f.Visual, err = d.Get32(); err != nil {
		return err
	}
	if f.Depth, err = d.Get8(); err != nil {
		return err
	}
	return d.Skip(3)
}

// AdaptorInfo describes one video adaptor and its range of ports. The
// name and format counts precede the data they count.
type AdaptorInfo struct {
	BaseID   xproto.Port
	NumPorts uint16
	Type     uint8
	Name     string
	Formats  []Format
}

func (a AdaptorInfo) MarshalWire(e *wire.Encoder) {
	e.Put32(a.BaseID.Uint32())
	e.Put16(uint16(len(a.Name)))
	e.Put16(a.NumPorts)
	e.Put16(uint16(len(a.Formats)))
	e.Put8(a.Type)
	e.Skip(1)
	e.PutString(a.Name)
	e.Align()
	wire.EncodeList(e, a.Formats)
}

func (a *AdaptorInfo) UnmarshalWire(d *wire.Decoder) error {
	base, err := d.Get32()
	if err != nil {
		return err
	}
	a.BaseID = xproto.Port(base)
	nameLen, err := d.Get16()
	if err != nil {
		return err
	}
	if a.NumPorts, err = d.Get16(); err != nil {
		return err
	}
	numFormats, err := d.Get16()
	if err != nil {
		return err
	}
	if a.Type, err = d.Get8(); err != nil {
		return err
	}
	if err := d.Skip(1); err != nil {
		return err
	}
	if a.Name, err = d.GetString(int(nameLen)); err != nil {
		return err
	}
	if err := d.Align(); err != nil {
		return err
	}
	a.Formats, err = wire.DecodeList[Format](d, int(numFormats))
	return err
}

// EncodingInfo is one encoding a port supports.
type EncodingInfo struct {
	Encoding xproto.Encoding
	Width    uint16
	Height   uint16
	Rate     Rational
	Name     string
}

func (i EncodingInfo) MarshalWire(e *wire.Encoder) {
	e.Put32(i.Encoding.Uint32())
	e.Put16(uint16(len(i.Name)))
	e.Put16(i.Width)
	e.Put16(i.Height)
	e.Skip(2)
	i.Rate.MarshalWire(e)
	e.PutString(i.Name)
	e.Align()
}

func (i *EncodingInfo) UnmarshalWire(d *wire.Decoder) error {
	enc, err := d.Get32()
	if err != nil {
		return err
	}
	i.Encoding = xproto.Encoding(enc)
	nameLen, err := d.Get16()
	if err != nil {
		return err
	}
	if i.Width, err = d.Get16(); err != nil {
		return err
	}
	if i.Height, err = d.Get16(); err != nil {
		return err
	}
	if err := d.Skip(2); err != nil {
		return err
	}
	if err := i.Rate.UnmarshalWire(d); err != nil {
		return err
	}
	if i.Name, err = d.GetString(int(nameLen)); err != nil {
		return err
	}
	return d.Align()
}

// AttributeInfo describes one port attribute and its value range.
type AttributeInfo struct {
	Flags uint32
	Min   int32
	Max   int32
	Name  string
}

func (a AttributeInfo) MarshalWire(e *wire.Encoder) {
	e.Put32(a.Flags)
	e.PutInt32(a.Min)
	e.PutInt32(a.Max)
	// The size counts the terminating NUL.
	e.Put32(uint32(len(a.Name) + 1))
	e.PutString(a.Name)
	e.Put8(0)
	e.Align()
}

func (a *AttributeInfo) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if a.Flags, err = d.Get32(); err != nil {
		return err
	}
	if a.Min, err = d.GetInt32(); err != nil {
		return err
	}
	if a.Max, err = d.GetInt32(); err != nil {
		return err
	}
	size, err := d.Get32()
	if err != nil {
		return err
	}
	name, err := d.GetBytes(int(size))
	if err != nil {
		return err
	}
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}
	a.Name = string(name)
	return d.Align()
}
