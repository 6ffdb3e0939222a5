package xv

import (
	"context"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Region is a rectangle of the video source or of the drawable.
type Region struct {
	X      int16
	Y      int16
	Width  uint16
	Height uint16
}

func (r Region) MarshalWire(e *wire.Encoder) {
	e.PutInt16(r.X)
	e.PutInt16(r.Y)
	e.Put16(r.Width)
	e.Put16(r.Height)
}

// videoBody is shared by PutVideo, PutStill, GetVideo and GetStill, which
// differ only in their minor opcode.
func videoBody(port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, dst Region) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(drawable.Uint32())
		e.Put32(gc.Uint32())
		video.MarshalWire(e)
		dst.MarshalWire(e)
	}
}

// PutVideo starts showing the video region of port's input in dst.
func PutVideo(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, dst Region) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "PutVideo", OpPutVideo, videoBody(port, drawable, gc, video, dst))
}

func PutVideoChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, dst Region) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "PutVideo", OpPutVideo, videoBody(port, drawable, gc, video, dst))
}

// PutStill shows a single frame of port's input.
func PutStill(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, dst Region) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "PutStill", OpPutStill, videoBody(port, drawable, gc, video, dst))
}

func PutStillChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, dst Region) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "PutStill", OpPutStill, videoBody(port, drawable, gc, video, dst))
}

// GetVideo starts feeding the drawable region src into port's output. The
// video region is where it lands in the output signal.
func GetVideo(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, src Region) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "GetVideo", OpGetVideo, videoBody(port, drawable, gc, video, src))
}

func GetVideoChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, src Region) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "GetVideo", OpGetVideo, videoBody(port, drawable, gc, video, src))
}

func GetStill(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, src Region) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "GetStill", OpGetStill, videoBody(port, drawable, gc, video, src))
}

func GetStillChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, video, src Region) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "GetStill", OpGetStill, videoBody(port, drawable, gc, video, src))
}
