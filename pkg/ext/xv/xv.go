// Package xv binds the XVideo extension: video adaptors, their ports,
// encodings and attributes.
package xv

import (
	"context"
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

const (
	OpQueryExtension       uint8 = 0
	OpQueryAdaptors        uint8 = 1
	OpQueryEncodings       uint8 = 2
	OpGrabPort             uint8 = 3
	OpUngrabPort           uint8 = 4
	OpPutVideo             uint8 = 5
	OpPutStill             uint8 = 6
	OpGetVideo             uint8 = 7
	OpGetStill             uint8 = 8
	OpStopVideo            uint8 = 9
	OpSelectVideoNotify    uint8 = 10
	OpSelectPortNotify     uint8 = 11
	OpQueryBestSize        uint8 = 12
	OpSetPortAttribute     uint8 = 13
	OpGetPortAttribute     uint8 = 14
	OpQueryPortAttributes  uint8 = 15
	OpListImageFormats     uint8 = 16
	OpQueryImageAttributes uint8 = 17
	OpPutImage             uint8 = 18
	OpShmPutImage          uint8 = 19
)

var Extension = &registry.Extension{
	Name:      "XVideo",
	NumEvents: 2,
	NumErrors: 3,
	Events: map[uint8]xproto.EventDecoder{
		VideoNotify: decodeVideoNotify,
		PortNotify:  decodePortNotify,
	},
	Errors: map[uint8]xproto.ErrorDecoder{
		BadPort:     xproto.NewErrorDecoder("Port", func(h xproto.ErrorHeader) xproto.Error { return &PortError{h} }),
		BadEncoding: xproto.NewErrorDecoder("Encoding", func(h xproto.ErrorHeader) xproto.Error { return &EncodingError{h} }),
		BadControl:  xproto.NewErrorDecoder("Control", func(h xproto.ErrorHeader) xproto.Error { return &ControlError{h} }),
	},
}

func request(ctx context.Context, c *client.Conn, name string, minor uint8, body func(e *wire.Encoder)) (wire.Request, error) {
	d, err := c.Extension(ctx, Extension)
	if err != nil {
		return wire.Request{}, err
	}
	return wire.Request{Name: "Xv" + name, Major: d.MajorOpcode, Data: minor, Body: wire.MarshalFunc(body)}, nil
}

func send[R any](ctx context.Context, c *client.Conn, name string, minor uint8, decode client.ReplyDecoder[R], body func(e *wire.Encoder)) (client.Cookie[R], error) {
	req, err := request(ctx, c, name, minor, body)
	if err != nil {
		return client.Cookie[R]{}, err
	}
	return client.Send(c, req, decode)
}

func sendVoid(ctx context.Context, c *client.Conn, name string, minor uint8, body func(e *wire.Encoder)) (client.VoidCookie, error) {
	req, err := request(ctx, c, name, minor, body)
	if err != nil {
		return client.VoidCookie{}, err
	}
	return c.SendVoid(req)
}

func sendChecked(ctx context.Context, c *client.Conn, name string, minor uint8, body func(e *wire.Encoder)) (client.CheckedCookie, error) {
	req, err := request(ctx, c, name, minor, body)
	if err != nil {
		return client.CheckedCookie{}, err
	}
	return c.SendChecked(req)
}

type QueryExtensionReply struct {
	Major uint16
	Minor uint16
}

func DecodeQueryExtensionReply(order binary.ByteOrder, msg []byte) (QueryExtensionReply, error) {
	var r QueryExtensionReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	if r.Major, err = d.Get16(); err != nil {
		return r, err
	}
	r.Minor, err = d.Get16()
	return r, err
}

// QueryExtension asks for the XVideo protocol version.
func QueryExtension(ctx context.Context, c *client.Conn) (client.Cookie[QueryExtensionReply], error) {
	return send(ctx, c, "QueryExtension", OpQueryExtension, DecodeQueryExtensionReply, func(*wire.Encoder) {})
}

type QueryAdaptorsReply struct {
	Info []AdaptorInfo
}

func DecodeQueryAdaptorsReply(order binary.ByteOrder, msg []byte) (QueryAdaptorsReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return QueryAdaptorsReply{}, err
	}
	n, err := d.Get16()
	if err != nil {
		return QueryAdaptorsReply{}, err
	}
	if err := d.Skip(22); err != nil {
		return QueryAdaptorsReply{}, err
	}
	info, err := wire.DecodeList[AdaptorInfo](d, int(n))
	return QueryAdaptorsReply{Info: info}, err
}

func QueryAdaptors(ctx context.Context, c *client.Conn, window xproto.Window) (client.Cookie[QueryAdaptorsReply], error) {
	return send(ctx, c, "QueryAdaptors", OpQueryAdaptors, DecodeQueryAdaptorsReply, func(e *wire.Encoder) {
		e.Put32(window.Uint32())
	})
}

type QueryEncodingsReply struct {
	Info []EncodingInfo
}

func DecodeQueryEncodingsReply(order binary.ByteOrder, msg []byte) (QueryEncodingsReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return QueryEncodingsReply{}, err
	}
	n, err := d.Get16()
	if err != nil {
		return QueryEncodingsReply{}, err
	}
	if err := d.Skip(22); err != nil {
		return QueryEncodingsReply{}, err
	}
	info, err := wire.DecodeList[EncodingInfo](d, int(n))
	return QueryEncodingsReply{Info: info}, err
}

func QueryEncodings(ctx context.Context, c *client.Conn, port xproto.Port) (client.Cookie[QueryEncodingsReply], error) {
	return send(ctx, c, "QueryEncodings", OpQueryEncodings, DecodeQueryEncodingsReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
	})
}

type GrabPortReply struct {
	// Result is one of the GrabPortStatus values.
	Result uint8
}

func DecodeGrabPortReply(order binary.ByteOrder, msg []byte) (GrabPortReply, error) {
	_, result, err := wire.ReplyDecoder(order, msg)
	return GrabPortReply{Result: result}, err
}

func portTime(port xproto.Port, time xproto.Timestamp) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(uint32(time))
	}
}

func GrabPort(ctx context.Context, c *client.Conn, port xproto.Port, time xproto.Timestamp) (client.Cookie[GrabPortReply], error) {
	return send(ctx, c, "GrabPort", OpGrabPort, DecodeGrabPortReply, portTime(port, time))
}

func UngrabPort(ctx context.Context, c *client.Conn, port xproto.Port, time xproto.Timestamp) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "UngrabPort", OpUngrabPort, portTime(port, time))
}

func UngrabPortChecked(ctx context.Context, c *client.Conn, port xproto.Port, time xproto.Timestamp) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "UngrabPort", OpUngrabPort, portTime(port, time))
}

func stopVideo(port xproto.Port, drawable xproto.Drawable) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(drawable.Uint32())
	}
}

func StopVideo(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "StopVideo", OpStopVideo, stopVideo(port, drawable))
}

func StopVideoChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "StopVideo", OpStopVideo, stopVideo(port, drawable))
}

func onOff(id uint32, on bool) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(id)
		e.PutBool(on)
		e.Skip(3)
	}
}

// SelectVideoNotify turns VideoNotify events for drawable on or off.
func SelectVideoNotify(ctx context.Context, c *client.Conn, drawable xproto.Drawable, on bool) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "SelectVideoNotify", OpSelectVideoNotify, onOff(drawable.Uint32(), on))
}

func SelectVideoNotifyChecked(ctx context.Context, c *client.Conn, drawable xproto.Drawable, on bool) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "SelectVideoNotify", OpSelectVideoNotify, onOff(drawable.Uint32(), on))
}

// SelectPortNotify turns PortNotify events for port on or off.
func SelectPortNotify(ctx context.Context, c *client.Conn, port xproto.Port, on bool) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "SelectPortNotify", OpSelectPortNotify, onOff(port.Uint32(), on))
}

func SelectPortNotifyChecked(ctx context.Context, c *client.Conn, port xproto.Port, on bool) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "SelectPortNotify", OpSelectPortNotify, onOff(port.Uint32(), on))
}

type QueryBestSizeReply struct {
	ActualWidth  uint16
	ActualHeight uint16
}

func DecodeQueryBestSizeReply(order binary.ByteOrder, msg []byte) (QueryBestSizeReply, error) {
	var r QueryBestSizeReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	if r.ActualWidth, err = d.Get16(); err != nil {
		return r, err
	}
	r.ActualHeight, err = d.Get16()
	return r, err
}

// BestSizeParams are the video source size, the drawable size it should be
// scaled to and whether the video is in motion.
type BestSizeParams struct {
	VideoWidth     uint16
	VideoHeight    uint16
	DrawableWidth  uint16
	DrawableHeight uint16
	Motion         bool
}

func QueryBestSize(ctx context.Context, c *client.Conn, port xproto.Port, p BestSizeParams) (client.Cookie[QueryBestSizeReply], error) {
	return send(ctx, c, "QueryBestSize", OpQueryBestSize, DecodeQueryBestSizeReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put16(p.VideoWidth)
		e.Put16(p.VideoHeight)
		e.Put16(p.DrawableWidth)
		e.Put16(p.DrawableHeight)
		e.PutBool(p.Motion)
		e.Skip(3)
	})
}

func setPortAttribute(port xproto.Port, attribute xproto.Atom, value int32) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(attribute.Uint32())
		e.PutInt32(value)
	}
}

func SetPortAttribute(ctx context.Context, c *client.Conn, port xproto.Port, attribute xproto.Atom, value int32) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "SetPortAttribute", OpSetPortAttribute, setPortAttribute(port, attribute, value))
}

func SetPortAttributeChecked(ctx context.Context, c *client.Conn, port xproto.Port, attribute xproto.Atom, value int32) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "SetPortAttribute", OpSetPortAttribute, setPortAttribute(port, attribute, value))
}

type GetPortAttributeReply struct {
	Value int32
}

func DecodeGetPortAttributeReply(order binary.ByteOrder, msg []byte) (GetPortAttributeReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return GetPortAttributeReply{}, err
	}
	v, err := d.GetInt32()
	return GetPortAttributeReply{Value: v}, err
}

func GetPortAttribute(ctx context.Context, c *client.Conn, port xproto.Port, attribute xproto.Atom) (client.Cookie[GetPortAttributeReply], error) {
	return send(ctx, c, "GetPortAttribute", OpGetPortAttribute, DecodeGetPortAttributeReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(attribute.Uint32())
	})
}

type QueryPortAttributesReply struct {
	// TextSize is the total size of the attribute names as the server
	// reports it.
	TextSize   uint32
	Attributes []AttributeInfo
}

func DecodeQueryPortAttributesReply(order binary.ByteOrder, msg []byte) (QueryPortAttributesReply, error) {
	var r QueryPortAttributesReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	n, err := d.Get32()
	if err != nil {
		return r, err
	}
	if r.TextSize, err = d.Get32(); err != nil {
		return r, err
	}
	if err := d.Skip(16); err != nil {
		return r, err
	}
	r.Attributes, err = wire.DecodeList[AttributeInfo](d, int(n))
	return r, err
}

func QueryPortAttributes(ctx context.Context, c *client.Conn, port xproto.Port) (client.Cookie[QueryPortAttributesReply], error) {
	return send(ctx, c, "QueryPortAttributes", OpQueryPortAttributes, DecodeQueryPortAttributesReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
	})
}
