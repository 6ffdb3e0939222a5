package xproto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/wire"
)

// ErrProtocol matches every error reported by the server:
// errors.Is(err, ErrProtocol) holds for all Error values.
var ErrProtocol = errors.New("xproto: protocol error")

// Error is every error a connection can deliver, core and extension alike.
// The set is closed: a type becomes an Error only by embedding ErrorHeader.
type Error interface {
	error
	Details() *ErrorHeader
	isError()
}

// ErrorHeader is the 32-byte error layout shared by the core and the
// extensions this module knows.
type ErrorHeader struct {
	// Code is the absolute error code, first error of the extension included.
	Code uint8
	Name string
	// Sequence is the wire sequence number of the failed request, Seq its
	// widened form.
	Sequence uint16
	Seq      uint64
	// BadValue is the resource id or value the server rejected.
	BadValue    uint32
	MinorOpcode uint16
	MajorOpcode uint8
	// Extension is empty for core errors.
	Extension string
}

func (h *ErrorHeader) Details() *ErrorHeader {
	return h
}

func (*ErrorHeader) isError() {}

func (h *ErrorHeader) Error() string {
	origin := "core"
	if h.Extension != "" {
		origin = h.Extension
	}
	return fmt.Sprintf("%s %s error (code %d): seq=%d bad_value=%#x major=%d minor=%d",
		origin, h.Name, h.Code, h.Seq, h.BadValue, h.MajorOpcode, h.MinorOpcode)
}

func (h *ErrorHeader) Is(target error) bool {
	return target == ErrProtocol
}

func (h *ErrorHeader) MarshalWire(e *wire.Encoder) {
	start := e.Len()
	e.Put8(wire.ResponseError)
	e.Put8(h.Code)
	e.Put16(h.Sequence)
	e.Put32(h.BadValue)
	e.Put16(h.MinorOpcode)
	e.Put8(h.MajorOpcode)
	e.Skip(wire.MessageSize - (e.Len() - start))
}

// ErrorDecoder builds an error from one complete message.
type ErrorDecoder func(order binary.ByteOrder, msg []byte) (Error, error)

// DecodeErrorHeader reads the common error layout.
func DecodeErrorHeader(order binary.ByteOrder, msg []byte) (ErrorHeader, error) {
	if len(msg) < wire.MessageSize || msg[0] != wire.ResponseError {
		return ErrorHeader{}, fmt.Errorf("%w: not an error", wire.ErrMalformed)
	}
	d := wire.NewDecoder(order, msg)
	_ = d.Skip(1)
	var (
		h   ErrorHeader
		err error
	)
	if h.Code, err = d.Get8(); err != nil {
		return h, err
	}
	if h.Sequence, err = d.Get16(); err != nil {
		return h, err
	}
	if h.BadValue, err = d.Get32(); err != nil {
		return h, err
	}
	if h.MinorOpcode, err = d.Get16(); err != nil {
		return h, err
	}
	h.MajorOpcode, err = d.Get8()
	return h, err
}

// NewErrorDecoder returns a decoder for an error with the common layout.
func NewErrorDecoder(name string, build func(ErrorHeader) Error) ErrorDecoder {
	return func(order binary.ByteOrder, msg []byte) (Error, error) {
		h, err := DecodeErrorHeader(order, msg)
		if err != nil {
			return nil, err
		}
		h.Name = name
		return build(h), nil
	}
}

type (
	RequestError        struct{ ErrorHeader }
	ValueError          struct{ ErrorHeader }
	WindowError         struct{ ErrorHeader }
	PixmapError         struct{ ErrorHeader }
	AtomError           struct{ ErrorHeader }
	CursorError         struct{ ErrorHeader }
	FontError           struct{ ErrorHeader }
	MatchError          struct{ ErrorHeader }
	DrawableError       struct{ ErrorHeader }
	AccessError         struct{ ErrorHeader }
	AllocError          struct{ ErrorHeader }
	ColormapError       struct{ ErrorHeader }
	GContextError       struct{ ErrorHeader }
	IDChoiceError       struct{ ErrorHeader }
	NameError           struct{ ErrorHeader }
	LengthError         struct{ ErrorHeader }
	ImplementationError struct{ ErrorHeader }
)

const (
	BadRequest        uint8 = 1
	BadValue          uint8 = 2
	BadWindow         uint8 = 3
	BadPixmap         uint8 = 4
	BadAtom           uint8 = 5
	BadCursor         uint8 = 6
	BadFont           uint8 = 7
	BadMatch          uint8 = 8
	BadDrawable       uint8 = 9
	BadAccess         uint8 = 10
	BadAlloc          uint8 = 11
	BadColormap       uint8 = 12
	BadGContext       uint8 = 13
	BadIDChoice       uint8 = 14
	BadName           uint8 = 15
	BadLength         uint8 = 16
	BadImplementation uint8 = 17
)

func coreErrors() map[uint8]ErrorDecoder {
	return map[uint8]ErrorDecoder{
		BadRequest:        NewErrorDecoder("Request", func(h ErrorHeader) Error { return &RequestError{h} }),
		BadValue:          NewErrorDecoder("Value", func(h ErrorHeader) Error { return &ValueError{h} }),
		BadWindow:         NewErrorDecoder("Window", func(h ErrorHeader) Error { return &WindowError{h} }),
		BadPixmap:         NewErrorDecoder("Pixmap", func(h ErrorHeader) Error { return &PixmapError{h} }),
		BadAtom:           NewErrorDecoder("Atom", func(h ErrorHeader) Error { return &AtomError{h} }),
		BadCursor:         NewErrorDecoder("Cursor", func(h ErrorHeader) Error { return &CursorError{h} }),
		BadFont:           NewErrorDecoder("Font", func(h ErrorHeader) Error { return &FontError{h} }),
		BadMatch:          NewErrorDecoder("Match", func(h ErrorHeader) Error { return &MatchError{h} }),
		BadDrawable:       NewErrorDecoder("Drawable", func(h ErrorHeader) Error { return &DrawableError{h} }),
		BadAccess:         NewErrorDecoder("Access", func(h ErrorHeader) Error { return &AccessError{h} }),
		BadAlloc:          NewErrorDecoder("Alloc", func(h ErrorHeader) Error { return &AllocError{h} }),
		BadColormap:       NewErrorDecoder("Colormap", func(h ErrorHeader) Error { return &ColormapError{h} }),
		BadGContext:       NewErrorDecoder("GContext", func(h ErrorHeader) Error { return &GContextError{h} }),
		BadIDChoice:       NewErrorDecoder("IDChoice", func(h ErrorHeader) Error { return &IDChoiceError{h} }),
		BadName:           NewErrorDecoder("Name", func(h ErrorHeader) Error { return &NameError{h} }),
		BadLength:         NewErrorDecoder("Length", func(h ErrorHeader) Error { return &LengthError{h} }),
		BadImplementation: NewErrorDecoder("Implementation", func(h ErrorHeader) Error { return &ImplementationError{h} }),
	}
}
