// Package dri2 binds the DRI2 extension: direct rendering buffer exchange
// and swap scheduling between a client and the display server.
package dri2

import (
	"context"
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

const (
	OpQueryVersion         uint8 = 0
	OpConnect              uint8 = 1
	OpAuthenticate         uint8 = 2
	OpCreateDrawable       uint8 = 3
	OpDestroyDrawable      uint8 = 4
	OpGetBuffers           uint8 = 5
	OpCopyRegion           uint8 = 6
	OpGetBuffersWithFormat uint8 = 7
	OpSwapBuffers          uint8 = 8
	OpGetMSC               uint8 = 9
	OpWaitMSC              uint8 = 10
	OpWaitSBC              uint8 = 11
	OpSwapInterval         uint8 = 12
	OpGetParam             uint8 = 13
)

// Event offsets from the first event the server assigns.
const (
	BufferSwapComplete uint8 = 0
	InvalidateBuffers  uint8 = 1
)

const (
	AttachmentBufferFrontLeft      uint32 = 1
	AttachmentBufferBackLeft       uint32 = 2
	AttachmentBufferFrontRight     uint32 = 3
	AttachmentBufferBackRight      uint32 = 4
	AttachmentBufferDepth          uint32 = 5
	AttachmentBufferStencil        uint32 = 6
	AttachmentBufferAccum          uint32 = 7
	AttachmentBufferFakeFrontLeft  uint32 = 8
	AttachmentBufferFakeFrontRight uint32 = 9
	AttachmentBufferDepthStencil   uint32 = 10
	AttachmentBufferHiz            uint32 = 11
)

const (
	DriverTypeDRI   uint32 = 1
	DriverTypeVDPAU uint32 = 2
)

// Values of BufferSwapCompleteEvent.EventType.
const (
	EventTypeExchangeComplete uint16 = 1
	EventTypeBlitComplete     uint16 = 2
	EventTypeFlipComplete     uint16 = 3
)

var Extension = &registry.Extension{
	Name:      "DRI2",
	NumEvents: 2,
	Events: map[uint8]xproto.EventDecoder{
		BufferSwapComplete: decodeBufferSwapComplete,
		InvalidateBuffers:  decodeInvalidateBuffers,
	},
}

// The protocol carries 64-bit counters as two CARD32 halves, high first.
func split(v uint64) (uint32, uint32) {
	return uint32(v >> 32), uint32(v)
}

func join(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func request(ctx context.Context, c *client.Conn, name string, minor uint8, body func(e *wire.Encoder)) (wire.Request, error) {
	d, err := c.Extension(ctx, Extension)
	if err != nil {
		return wire.Request{}, err
	}
	return wire.Request{Name: "DRI2" + name, Major: d.MajorOpcode, Data: minor, Body: wire.MarshalFunc(body)}, nil
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

func drawableBody(drawable xproto.Drawable, values ...uint32) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(drawable.Uint32())
		wire.Put32List(e, values)
	}
}

type QueryVersionReply struct {
	MajorVersion uint32
	MinorVersion uint32
}

func DecodeQueryVersionReply(order binary.ByteOrder, msg []byte) (QueryVersionReply, error) {
	var r QueryVersionReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	if r.MajorVersion, err = d.Get32(); err != nil {
		return r, err
	}
	r.MinorVersion, err = d.Get32()
	return r, err
}

func QueryVersion(ctx context.Context, c *client.Conn, major, minor uint32) (client.Cookie[QueryVersionReply], error) {
	return send(ctx, c, "QueryVersion", OpQueryVersion, DecodeQueryVersionReply, func(e *wire.Encoder) {
		e.Put32(major)
		e.Put32(minor)
	})
}

type ConnectReply struct {
	DriverName string
	DeviceName string
}

// DecodeConnectReply reads the two names. The driver name is padded to 4
// bytes before the device name starts.
func DecodeConnectReply(order binary.ByteOrder, msg []byte) (ConnectReply, error) {
	var r ConnectReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	driverLen, err := d.Get32()
	if err != nil {
		return r, err
	}
	deviceLen, err := d.Get32()
	if err != nil {
		return r, err
	}
	if err := d.Skip(16); err != nil {
		return r, err
	}
	if r.DriverName, err = d.GetString(int(driverLen)); err != nil {
		return r, err
	}
	if err := d.Align(); err != nil {
		return r, err
	}
	r.DeviceName, err = d.GetString(int(deviceLen))
	return r, err
}

func Connect(ctx context.Context, c *client.Conn, window xproto.Window, driverType uint32) (client.Cookie[ConnectReply], error) {
	return send(ctx, c, "Connect", OpConnect, DecodeConnectReply, func(e *wire.Encoder) {
		e.Put32(window.Uint32())
		e.Put32(driverType)
	})
}

type AuthenticateReply struct {
	Authenticated bool
}

func DecodeAuthenticateReply(order binary.ByteOrder, msg []byte) (AuthenticateReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return AuthenticateReply{}, err
	}
	v, err := d.Get32()
	return AuthenticateReply{Authenticated: v != 0}, err
}

func Authenticate(ctx context.Context, c *client.Conn, window xproto.Window, magic uint32) (client.Cookie[AuthenticateReply], error) {
	return send(ctx, c, "Authenticate", OpAuthenticate, DecodeAuthenticateReply, func(e *wire.Encoder) {
		e.Put32(window.Uint32())
		e.Put32(magic)
	})
}

func CreateDrawable(ctx context.Context, c *client.Conn, drawable xproto.Drawable) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "CreateDrawable", OpCreateDrawable, drawableBody(drawable))
}

func CreateDrawableChecked(ctx context.Context, c *client.Conn, drawable xproto.Drawable) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "CreateDrawable", OpCreateDrawable, drawableBody(drawable))
}

func DestroyDrawable(ctx context.Context, c *client.Conn, drawable xproto.Drawable) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "DestroyDrawable", OpDestroyDrawable, drawableBody(drawable))
}

func DestroyDrawableChecked(ctx context.Context, c *client.Conn, drawable xproto.Drawable) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "DestroyDrawable", OpDestroyDrawable, drawableBody(drawable))
}

// Buffer is one 20-byte buffer description.
type Buffer struct {
	Attachment uint32
	Name       uint32
	Pitch      uint32
	CPP        uint32
	Flags      uint32
}

func (b Buffer) MarshalWire(e *wire.Encoder) {
	wire.Put32List(e, []uint32{b.Attachment, b.Name, b.Pitch, b.CPP, b.Flags})
}

func (b *Buffer) UnmarshalWire(d *wire.Decoder) error {
	fields, err := wire.Get32List(d, 5)
	if err != nil {
		return err
	}
	b.Attachment, b.Name, b.Pitch, b.CPP, b.Flags = fields[0], fields[1], fields[2], fields[3], fields[4]
	return nil
}

type GetBuffersReply struct {
	Width   uint32
	Height  uint32
	Buffers []Buffer
}

// DecodeGetBuffersReply reads the buffer list using the count at offset 16.
// Both GetBuffers and GetBuffersWithFormat answer with this layout.
func DecodeGetBuffersReply(order binary.ByteOrder, msg []byte) (GetBuffersReply, error) {
	var r GetBuffersReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	head, err := wire.Get32List(d, 3)
	if err != nil {
		return r, err
	}
	r.Width, r.Height = head[0], head[1]
	if err := d.Skip(12); err != nil {
		return r, err
	}
	r.Buffers, err = wire.DecodeList[Buffer](d, int(head[2]))
	return r, err
}

func GetBuffers(ctx context.Context, c *client.Conn, drawable xproto.Drawable, count uint32, attachments []uint32) (client.Cookie[GetBuffersReply], error) {
	return send(ctx, c, "GetBuffers", OpGetBuffers, DecodeGetBuffersReply, func(e *wire.Encoder) {
		e.Put32(drawable.Uint32())
		e.Put32(count)
		wire.Put32List(e, attachments)
	})
}

type AttachFormat struct {
	Attachment uint32
	Format     uint32
}

func (a AttachFormat) MarshalWire(e *wire.Encoder) {
	e.Put32(a.Attachment)
	e.Put32(a.Format)
}

func GetBuffersWithFormat(ctx context.Context, c *client.Conn, drawable xproto.Drawable, count uint32, attachments []AttachFormat) (client.Cookie[GetBuffersReply], error) {
	return send(ctx, c, "GetBuffersWithFormat", OpGetBuffersWithFormat, DecodeGetBuffersReply, func(e *wire.Encoder) {
		e.Put32(drawable.Uint32())
		e.Put32(count)
		wire.EncodeList(e, attachments)
	})
}

// CopyRegionReply carries nothing; its arrival means the copy is done.
type CopyRegionReply struct{}

func DecodeCopyRegionReply(order binary.ByteOrder, msg []byte) (CopyRegionReply, error) {
	_, _, err := wire.ReplyDecoder(order, msg)
	return CopyRegionReply{}, err
}

func CopyRegion(ctx context.Context, c *client.Conn, drawable xproto.Drawable, region, dest, src uint32) (client.Cookie[CopyRegionReply], error) {
	return send(ctx, c, "CopyRegion", OpCopyRegion, DecodeCopyRegionReply, drawableBody(drawable, region, dest, src))
}

type SwapBuffersReply struct {
	Swap uint64
}

func DecodeSwapBuffersReply(order binary.ByteOrder, msg []byte) (SwapBuffersReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return SwapBuffersReply{}, err
	}
	v, err := wire.Get32List(d, 2)
	if err != nil {
		return SwapBuffersReply{}, err
	}
	return SwapBuffersReply{Swap: join(v[0], v[1])}, nil
}

// swapTarget is the target/divisor/remainder triple shared by SwapBuffers
// and WaitMSC.
func swapTarget(drawable xproto.Drawable, target, divisor, remainder uint64) func(e *wire.Encoder) {
	th, tl := split(target)
	dh, dl := split(divisor)
	rh, rl := split(remainder)
	return drawableBody(drawable, th, tl, dh, dl, rh, rl)
}

func SwapBuffers(ctx context.Context, c *client.Conn, drawable xproto.Drawable, targetMSC, divisor, remainder uint64) (client.Cookie[SwapBuffersReply], error) {
	return send(ctx, c, "SwapBuffers", OpSwapBuffers, DecodeSwapBuffersReply, swapTarget(drawable, targetMSC, divisor, remainder))
}

// Counters is the reply of GetMSC, WaitMSC and WaitSBC: the unadjusted
// system time, the media stream counter and the swap buffer counter.
type Counters struct {
	UST uint64
	MSC uint64
	SBC uint64
}

func DecodeCounters(order binary.ByteOrder, msg []byte) (Counters, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return Counters{}, err
	}
	v, err := wire.Get32List(d, 6)
	if err != nil {
		return Counters{}, err
	}
	return Counters{UST: join(v[0], v[1]), MSC: join(v[2], v[3]), SBC: join(v[4], v[5])}, nil
}

func GetMSC(ctx context.Context, c *client.Conn, drawable xproto.Drawable) (client.Cookie[Counters], error) {
	return send(ctx, c, "GetMSC", OpGetMSC, DecodeCounters, drawableBody(drawable))
}

func WaitMSC(ctx context.Context, c *client.Conn, drawable xproto.Drawable, targetMSC, divisor, remainder uint64) (client.Cookie[Counters], error) {
	return send(ctx, c, "WaitMSC", OpWaitMSC, DecodeCounters, swapTarget(drawable, targetMSC, divisor, remainder))
}

func WaitSBC(ctx context.Context, c *client.Conn, drawable xproto.Drawable, targetSBC uint64) (client.Cookie[Counters], error) {
	hi, lo := split(targetSBC)
	return send(ctx, c, "WaitSBC", OpWaitSBC, DecodeCounters, drawableBody(drawable, hi, lo))
}

func SwapInterval(ctx context.Context, c *client.Conn, drawable xproto.Drawable, interval uint32) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "SwapInterval", OpSwapInterval, drawableBody(drawable, interval))
}

func SwapIntervalChecked(ctx context.Context, c *client.Conn, drawable xproto.Drawable, interval uint32) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "SwapInterval", OpSwapInterval, drawableBody(drawable, interval))
}

type GetParamReply struct {
	// Recognized is false when the server does not know the parameter.
	Recognized bool
	Value      uint64
}

func DecodeGetParamReply(order binary.ByteOrder, msg []byte) (GetParamReply, error) {
	d, recognized, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return GetParamReply{}, err
	}
	v, err := wire.Get32List(d, 2)
	if err != nil {
		return GetParamReply{}, err
	}
	return GetParamReply{Recognized: recognized != 0, Value: join(v[0], v[1])}, nil
}

func GetParam(ctx context.Context, c *client.Conn, drawable xproto.Drawable, param uint32) (client.Cookie[GetParamReply], error) {
	return send(ctx, c, "GetParam", OpGetParam, DecodeGetParamReply, drawableBody(drawable, param))
}
