package xv

import (
	"context"
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Image format types and layouts.
const (
	ImageFormatInfoTypeRGB uint8 = 0
	ImageFormatInfoTypeYUV uint8 = 1

	ImageFormatInfoFormatPacked uint8 = 0
	ImageFormatInfoFormatPlanar uint8 = 1

	ScanlineOrderTopToBottom uint8 = 0
	ScanlineOrderBottomToTop uint8 = 1
)

// ImageFormatInfoSize is the fixed wire size of one ImageFormatInfo.
const ImageFormatInfoSize = 128

// ImageFormatInfo describes one image format a port accepts. The RGB masks
// apply to RGB formats and the sample and period fields to YUV formats.
type ImageFormatInfo struct {
	ID        uint32
	Type      uint8
	ByteOrder uint8
	GUID      [16]byte
	BPP       uint8
	NumPlanes uint8
	Depth     uint8
	RedMask   uint32
	GreenMask uint32
	BlueMask  uint32
	// Format is packed or planar.
	Format        uint8
	YSampleBits   uint32
	USampleBits   uint32
	VSampleBits   uint32
	VHorzYPeriod  uint32
	VHorzUPeriod  uint32
	VHorzVPeriod  uint32
	VVertYPeriod  uint32
	VVertUPeriod  uint32
	VVertVPeriod  uint32
	VCompOrder    [32]byte
	ScanlineOrder uint8
}

func (f ImageFormatInfo) MarshalWire(e *wire.Encoder) {
	e.Put32(f.ID)
	e.Put8(f.Type)
	e.Put8(f.ByteOrder)
	e.Skip(2)
	e.PutBytes(f.GUID[:])
	e.Put8(f.BPP)
	e.Put8(f.NumPlanes)
	e.Skip(2)
	e.Put8(f.Depth)
	e.Skip(3)
	wire.Put32List(e, []uint32{f.RedMask, f.GreenMask, f.BlueMask})
	e.Put8(f.Format)
	e.Skip(3)
	wire.Put32List(e, []uint32{
		f.YSampleBits, f.USampleBits, f.VSampleBits,
		f.VHorzYPeriod, f.VHorzUPeriod, f.VHorzVPeriod,
		f.VVertYPeriod, f.VVertUPeriod, f.VVertVPeriod,
	})
	e.PutBytes(f.VCompOrder[:])
	e.Put8(f.ScanlineOrder)
	e.Skip(11)
}

func (f *ImageFormatInfo) UnmarshalWire(d *wire.Decoder) error {
	var err error
	if f.ID, err = d.Get32(); err != nil {
		return err
	}
	if f.Type, err = d.Get8(); err != nil {
		return err
	}
	if f.ByteOrder, err = d.Get8(); err != nil {
		return err
	}
	if err := d.Skip(2); err != nil {
		return err
	}
	guid, err := d.GetBytes(len(f.GUID))
	if err != nil {
		return err
	}
	copy(f.GUID[:], guid)
	if f.BPP, err = d.Get8(); err != nil {
		return err
	}
	if f.NumPlanes, err = d.Get8(); err != nil {
		return err
	}
	if err := d.Skip(2); err != nil {
		return err
	}
	if f.Depth, err = d.Get8(); err != nil {
		return err
	}
	if err := d.Skip(3); err != nil {
		return err
	}
	masks, err := wire.Get32List(d, 3)
	if err != nil {
		return err
	}
	f.RedMask, f.GreenMask, f.BlueMask = masks[0], masks[1], masks[2]
	if f.Format, err = d.Get8(); err != nil {
		return err
	}
	if err := d.Skip(3); err != nil {
		return err
	}
	yuv, err := wire.Get32List(d, 9)
	if err != nil {
		return err
	}
	f.YSampleBits, f.USampleBits, f.VSampleBits = yuv[0], yuv[1], yuv[2]
	f.VHorzYPeriod, f.VHorzUPeriod, f.VHorzVPeriod = yuv[3], yuv[4], yuv[5]
	f.VVertYPeriod, f.VVertUPeriod, f.VVertVPeriod = yuv[6], yuv[7], yuv[8]
	order, err := d.GetBytes(len(f.VCompOrder))
	if err != nil {
		return err
	}
	copy(f.VCompOrder[:], order)
	if f.ScanlineOrder, err = d.Get8(); err != nil {
		return err
	}
	return d.Skip(11)
}

type ListImageFormatsReply struct {
	Formats []ImageFormatInfo
}

func DecodeListImageFormatsReply(order binary.ByteOrder, msg []byte) (ListImageFormatsReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return ListImageFormatsReply{}, err
	}
	n, err := d.Get32()
	if err != nil {
		return ListImageFormatsReply{}, err
	}
	if err := d.Skip(20); err != nil {
		return ListImageFormatsReply{}, err
	}
	formats, err := wire.DecodeList[ImageFormatInfo](d, int(n))
	return ListImageFormatsReply{Formats: formats}, err
}

func ListImageFormats(ctx context.Context, c *client.Conn, port xproto.Port) (client.Cookie[ListImageFormatsReply], error) {
	return send(ctx, c, "ListImageFormats", OpListImageFormats, DecodeListImageFormatsReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
	})
}

// QueryImageAttributesReply gives the layout of an image of the requested
// size, adjusted to what the port supports. Pitches and Offsets hold one
// entry per plane.
type QueryImageAttributesReply struct {
	DataSize uint32
	Width    uint16
	Height   uint16
	Pitches  []uint32
	Offsets  []uint32
}

func DecodeQueryImageAttributesReply(order binary.ByteOrder, msg []byte) (QueryImageAttributesReply, error) {
	var r QueryImageAttributesReply
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return r, err
	}
	planes, err := d.Get32()
	if err != nil {
		return r, err
	}
	if r.DataSize, err = d.Get32(); err != nil {
		return r, err
	}
	if r.Width, err = d.Get16(); err != nil {
		return r, err
	}
	if r.Height, err = d.Get16(); err != nil {
		return r, err
	}
	if err := d.Skip(12); err != nil {
		return r, err
	}
	if r.Pitches, err = wire.Get32List(d, int(planes)); err != nil {
		return r, err
	}
	r.Offsets, err = wire.Get32List(d, int(planes))
	return r, err
}

func QueryImageAttributes(ctx context.Context, c *client.Conn, port xproto.Port, id uint32, width, height uint16) (client.Cookie[QueryImageAttributesReply], error) {
	return send(ctx, c, "QueryImageAttributes", OpQueryImageAttributes, DecodeQueryImageAttributesReply, func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(id)
		e.Put16(width)
		e.Put16(height)
	})
}

// Image is client-side image data in one of the port's image formats,
// scaled from Src to Dst. Width and Height are the size of the whole image
// in Data.
type Image struct {
	ID     uint32
	Src    Region
	Dst    Region
	Width  uint16
	Height uint16
	Data   []byte
}

func putImageBody(port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img Image) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(drawable.Uint32())
		e.Put32(gc.Uint32())
		e.Put32(img.ID)
		img.Src.MarshalWire(e)
		img.Dst.MarshalWire(e)
		e.Put16(img.Width)
		e.Put16(img.Height)
		e.PutBytes(img.Data)
	}
}

// PutImage sends an image with the request itself. Frames of any real size
// need BIG-REQUESTS enabled first.
func PutImage(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img Image) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "PutImage", OpPutImage, putImageBody(port, drawable, gc, img))
}

func PutImageChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img Image) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "PutImage", OpPutImage, putImageBody(port, drawable, gc, img))
}

// ShmImage is an image the server reads from a shared memory segment.
type ShmImage struct {
	ID     uint32
	Seg    xproto.ShmSeg
	Offset uint32
	Src    Region
	Dst    Region
	Width  uint16
	Height uint16
	// SendEvent asks for a completion event once the server is done with
	// the segment.
	SendEvent bool
}

func shmPutImageBody(port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img ShmImage) func(e *wire.Encoder) {
	return func(e *wire.Encoder) {
		e.Put32(port.Uint32())
		e.Put32(drawable.Uint32())
		e.Put32(gc.Uint32())
		e.Put32(img.Seg.Uint32())
		e.Put32(img.ID)
		e.Put32(img.Offset)
		img.Src.MarshalWire(e)
		img.Dst.MarshalWire(e)
		e.Put16(img.Width)
		e.Put16(img.Height)
		e.PutBool(img.SendEvent)
		e.Skip(3)
	}
}

func ShmPutImage(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img ShmImage) (client.VoidCookie, error) {
	return sendVoid(ctx, c, "ShmPutImage", OpShmPutImage, shmPutImageBody(port, drawable, gc, img))
}

func ShmPutImageChecked(ctx context.Context, c *client.Conn, port xproto.Port, drawable xproto.Drawable, gc xproto.GContext, img ShmImage) (client.CheckedCookie, error) {
	return sendChecked(ctx, c, "ShmPutImage", OpShmPutImage, shmPutImageBody(port, drawable, gc, img))
}
