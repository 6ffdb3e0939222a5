package xproto

import (
	"encoding/binary"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/wire"
)

// Core major opcodes.
const (
	OpCreateWindow           uint8 = 1
	OpChangeWindowAttributes uint8 = 2
	OpDestroyWindow          uint8 = 4
	OpMapWindow              uint8 = 8
	OpConfigureWindow        uint8 = 12
	OpQueryTree              uint8 = 15
	OpInternAtom             uint8 = 16
	OpGetAtomName            uint8 = 17
	OpChangeProperty         uint8 = 18
	OpGetProperty            uint8 = 20
	OpGetInputFocus          uint8 = 43
	OpQueryExtension         uint8 = 98
	OpListExtensions         uint8 = 99
	OpNoOperation            uint8 = 127
)

type windowBody Window

func (w windowBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(w))
}

type CreateWindowParams struct {
	Depth       uint8
	Window      Window
	Parent      Window
	X           int16
	Y           int16
	Width       uint16
	Height      uint16
	BorderWidth uint16
	Class       uint16
	Visual      uint32
	// Values holds the optional attributes keyed by the CW* bits.
	Values wire.ValueList
}

func (p CreateWindowParams) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(p.Window))
	e.Put32(uint32(p.Parent))
	e.PutInt16(p.X)
	e.PutInt16(p.Y)
	e.Put16(p.Width)
	e.Put16(p.Height)
	e.Put16(p.BorderWidth)
	e.Put16(p.Class)
	e.Put32(p.Visual)
	e.Put32(p.Values.Mask())
	p.Values.EncodeValues(e)
}

func CreateWindow(p CreateWindowParams) wire.Request {
	return wire.Request{Name: "CreateWindow", Major: OpCreateWindow, Data: p.Depth, Body: p}
}

type changeWindowAttributesBody struct {
	window Window
	values wire.ValueList
}

func (b changeWindowAttributesBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(b.window))
	e.Put32(b.values.Mask())
	b.values.EncodeValues(e)
}

func ChangeWindowAttributes(window Window, values wire.ValueList) wire.Request {
	return wire.Request{
		Name:  "ChangeWindowAttributes",
		Major: OpChangeWindowAttributes,
		Body:  changeWindowAttributesBody{window: window, values: values},
	}
}

func DestroyWindow(window Window) wire.Request {
	return wire.Request{Name: "DestroyWindow", Major: OpDestroyWindow, Body: windowBody(window)}
}

func MapWindow(window Window) wire.Request {
	return wire.Request{Name: "MapWindow", Major: OpMapWindow, Body: windowBody(window)}
}

type configureWindowBody struct {
	window Window
	values wire.ValueList
}

func (b configureWindowBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(b.window))
	e.Put16(uint16(b.values.Mask()))
	e.Skip(2)
	b.values.EncodeValues(e)
}

// ConfigureWindow carries a 16-bit value mask; values keyed by bits above
// ConfigWindowStackMode are rejected.
func ConfigureWindow(window Window, values wire.ValueList) (wire.Request, error) {
	if values.Mask() > 0xffff {
		return wire.Request{}, fmt.Errorf("xproto: ConfigureWindow mask %#x does not fit 16 bits", values.Mask())
	}
	return wire.Request{
		Name:  "ConfigureWindow",
		Major: OpConfigureWindow,
		Body:  configureWindowBody{window: window, values: values},
	}, nil
}

func QueryTree(window Window) wire.Request {
	return wire.Request{Name: "QueryTree", Major: OpQueryTree, Body: windowBody(window)}
}

type QueryTreeReply struct {
	Root     Window
	Parent   Window
	Children []Window
}

func DecodeQueryTreeReply(order binary.ByteOrder, msg []byte) (QueryTreeReply, error) {
	var r QueryTreeReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	ids, err := wire.Get32List(d, 2)
	if err != nil {
		return r, err
	}
	r.Root, r.Parent = Window(ids[0]), Window(ids[1])
	n, err := d.Get16()
	if err != nil {
		return r, err
	}
	if err = d.Skip(14); err != nil {
		return r, err
	}
	children, err := wire.Get32List(d, int(n))
	if err != nil {
		return r, err
	}
	r.Children = make([]Window, len(children))
	for i, c := range children {
		r.Children[i] = Window(c)
	}
	return r, nil
}

// nameBody is a CARD16 length, two pad bytes and the padded name.
type nameBody string

func (n nameBody) MarshalWire(e *wire.Encoder) {
	e.Put16(uint16(len(n)))
	e.Skip(2)
	e.PutString(string(n))
	e.Align()
}

func InternAtom(onlyIfExists bool, name string) wire.Request {
	var data uint8
	if onlyIfExists {
		data = 1
	}
	return wire.Request{Name: "InternAtom", Major: OpInternAtom, Data: data, Body: nameBody(name)}
}

type InternAtomReply struct {
	Atom Atom
}

func DecodeInternAtomReply(order binary.ByteOrder, msg []byte) (InternAtomReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return InternAtomReply{}, err
	}
	a, err := d.Get32()
	return InternAtomReply{Atom: Atom(a)}, err
}

type atomBody Atom

func (a atomBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(a))
}

func GetAtomName(atom Atom) wire.Request {
	return wire.Request{Name: "GetAtomName", Major: OpGetAtomName, Body: atomBody(atom)}
}

type GetAtomNameReply struct {
	Name string
}

func DecodeGetAtomNameReply(order binary.ByteOrder, msg []byte) (GetAtomNameReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return GetAtomNameReply{}, err
	}
	n, err := d.Get16()
	if err != nil {
		return GetAtomNameReply{}, err
	}
	if err = d.Skip(22); err != nil {
		return GetAtomNameReply{}, err
	}
	name, err := d.GetString(int(n))
	return GetAtomNameReply{Name: name}, err
}

// PropertyValue is the data of a property. Format (8, 16 or 32, or 0 for a
// missing property) selects which slice is populated.
type PropertyValue struct {
	Format uint8
	Data8  []uint8
	Data16 []uint16
	Data32 []uint32
}

func Property8(b []byte) PropertyValue {
	return PropertyValue{Format: 8, Data8: b}
}

func Property16(v []uint16) PropertyValue {
	return PropertyValue{Format: 16, Data16: v}
}

func Property32(v []uint32) PropertyValue {
	return PropertyValue{Format: 32, Data32: v}
}

// Len is the number of elements in the populated arm.
func (p PropertyValue) Len() int {
	switch p.Format {
	case 8:
		return len(p.Data8)
	case 16:
		return len(p.Data16)
	case 32:
		return len(p.Data32)
	}
	return 0
}

// Encode writes the populated arm and pads it to 4 bytes.
func (p PropertyValue) Encode(e *wire.Encoder) {
	switch p.Format {
	case 8:
		e.PutBytes(p.Data8)
	case 16:
		for _, v := range p.Data16 {
			e.Put16(v)
		}
	case 32:
		wire.Put32List(e, p.Data32)
	}
	e.Align()
}

// DecodePropertyValue reads n elements of the arm selected by format.
func DecodePropertyValue(d *wire.Decoder, format uint8, n int) (PropertyValue, error) {
	p := PropertyValue{Format: format}
	var err error
	switch format {
	case 0:
		if n != 0 {
			return p, fmt.Errorf("%w: %d elements in a property without format", wire.ErrMalformed, n)
		}
		return p, nil
	case 8:
		p.Data8, err = d.GetBytes(n)
	case 16:
		if n*2 > d.Remaining() {
			return p, fmt.Errorf("%w: %d CARD16 with %d bytes left", wire.ErrMalformed, n, d.Remaining())
		}
		p.Data16 = make([]uint16, n)
		for i := range p.Data16 {
			if p.Data16[i], err = d.Get16(); err != nil {
				return p, err
			}
		}
	case 32:
		p.Data32, err = wire.Get32List(d, n)
	default:
		return p, fmt.Errorf("%w: property format %d", wire.ErrMalformed, format)
	}
	if err != nil {
		return p, err
	}
	return p, d.Align()
}

type changePropertyBody struct {
	window   Window
	property Atom
	typ      Atom
	value    PropertyValue
}

func (b changePropertyBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(b.window))
	e.Put32(uint32(b.property))
	e.Put32(uint32(b.typ))
	e.Put8(b.value.Format)
	e.Skip(3)
	e.Put32(uint32(b.value.Len()))
	b.value.Encode(e)
}

func ChangeProperty(mode uint8, window Window, property, typ Atom, value PropertyValue) (wire.Request, error) {
	switch value.Format {
	case 8, 16, 32:
	default:
		return wire.Request{}, fmt.Errorf("xproto: ChangeProperty format %d", value.Format)
	}
	return wire.Request{
		Name:  "ChangeProperty",
		Major: OpChangeProperty,
		Data:  mode,
		Body:  changePropertyBody{window: window, property: property, typ: typ, value: value},
	}, nil
}

type getPropertyBody struct {
	window   Window
	property Atom
	typ      Atom
	offset   uint32
	length   uint32
}

func (b getPropertyBody) MarshalWire(e *wire.Encoder) {
	e.Put32(uint32(b.window))
	e.Put32(uint32(b.property))
	e.Put32(uint32(b.typ))
	e.Put32(b.offset)
	e.Put32(b.length)
}

// GetProperty reads length 4-byte units starting at offset units.
func GetProperty(del bool, window Window, property, typ Atom, offset, length uint32) wire.Request {
	var data uint8
	if del {
		data = 1
	}
	return wire.Request{
		Name:  "GetProperty",
		Major: OpGetProperty,
		Data:  data,
		Body:  getPropertyBody{window: window, property: property, typ: typ, offset: offset, length: length},
	}
}

type GetPropertyReply struct {
	Type       Atom
	BytesAfter uint32
	Value      PropertyValue
}

func DecodeGetPropertyReply(order binary.ByteOrder, msg []byte) (GetPropertyReply, error) {
	var r GetPropertyReply
	d, format, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	vs, err := wire.Get32List(d, 3)
	if err != nil {
		return r, err
	}
	r.Type, r.BytesAfter = Atom(vs[0]), vs[1]
	if err = d.Skip(12); err != nil {
		return r, err
	}
	r.Value, err = DecodePropertyValue(d, format, int(vs[2]))
	return r, err
}

func GetInputFocus() wire.Request {
	return wire.Request{Name: "GetInputFocus", Major: OpGetInputFocus}
}

type GetInputFocusReply struct {
	RevertTo uint8
	Focus    Window
}

func DecodeGetInputFocusReply(order binary.ByteOrder, msg []byte) (GetInputFocusReply, error) {
	d, revertTo, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return GetInputFocusReply{}, err
	}
	w, err := d.Get32()
	return GetInputFocusReply{RevertTo: revertTo, Focus: Window(w)}, err
}

func QueryExtension(name string) wire.Request {
	return wire.Request{Name: "QueryExtension", Major: OpQueryExtension, Body: nameBody(name)}
}

type QueryExtensionReply struct {
	Present     bool
	MajorOpcode uint8
	FirstEvent  uint8
	FirstError  uint8
}

func DecodeQueryExtensionReply(order binary.ByteOrder, msg []byte) (QueryExtensionReply, error) {
	var r QueryExtensionReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	if r.Present, err = d.GetBool(); err != nil {
		return r, err
	}
	if r.MajorOpcode, err = d.Get8(); err != nil {
		return r, err
	}
	if r.FirstEvent, err = d.Get8(); err != nil {
		return r, err
	}
	r.FirstError, err = d.Get8()
	return r, err
}

func ListExtensions() wire.Request {
	return wire.Request{Name: "ListExtensions", Major: OpListExtensions}
}

type ListExtensionsReply struct {
	Names []string
}

func DecodeListExtensionsReply(order binary.ByteOrder, msg []byte) (ListExtensionsReply, error) {
	d, count, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return ListExtensionsReply{}, err
	}
	if err = d.Skip(24); err != nil {
		return ListExtensionsReply{}, err
	}
	names, err := wire.DecodeList[Str](d, int(count))
	if err != nil {
		return ListExtensionsReply{}, err
	}
	r := ListExtensionsReply{Names: make([]string, len(names))}
	for i, n := range names {
		r.Names[i] = string(n)
	}
	return r, nil
}

func NoOperation() wire.Request {
	return wire.Request{Name: "NoOperation", Major: OpNoOperation}
}
