// Package xproto holds the core protocol catalog: typed resource handles,
// the Event and Error sum types, the core events and errors, and the core
// requests the connection machinery relies on.
package xproto

import (
	"errors"
	"fmt"
	"sync"
)

// Xid is a resource handle. K is a marker type naming the resource kind, so
// a Window cannot be passed where a Pixmap is expected even though both are
// a CARD32 on the wire.
type Xid[K any] uint32

func (x Xid[K]) Uint32() uint32 {
	return uint32(x)
}

func (x Xid[K]) String() string {
	return fmt.Sprintf("%#x", uint32(x))
}

type (
	WindowKind   struct{}
	PixmapKind   struct{}
	DrawableKind struct{}
	AtomKind     struct{}
	ColormapKind struct{}
	CursorKind   struct{}
	GContextKind struct{}
	PortKind     struct{}
	EncodingKind struct{}
	ShmSegKind   struct{}
)

type (
	Window   = Xid[WindowKind]
	Pixmap   = Xid[PixmapKind]
	Drawable = Xid[DrawableKind]
	Atom     = Xid[AtomKind]
	Colormap = Xid[ColormapKind]
	Cursor   = Xid[CursorKind]
	GContext = Xid[GContextKind]
	Port     = Xid[PortKind]
	Encoding = Xid[EncodingKind]
	ShmSeg   = Xid[ShmSegKind]
)

// Timestamp is a server time in milliseconds; CurrentTime (0) asks the server
// to use its own.
type Timestamp uint32

const (
	None        uint32    = 0
	CurrentTime Timestamp = 0
)

// WindowDrawable and PixmapDrawable convert a concrete handle to the Drawable
// kind accepted by requests that work on either.
func WindowDrawable(w Window) Drawable {
	return Drawable(w)
}

func PixmapDrawable(p Pixmap) Drawable {
	return Drawable(p)
}

// ErrIDsExhausted is returned by IDRange once every id in its range has been
// handed out.
var ErrIDsExhausted = errors.New("xproto: resource ids exhausted")

// XidSource produces unused resource ids.
type XidSource interface {
	NewID() (uint32, error)
}

// NewXid draws a typed handle from src.
func NewXid[K any](src XidSource) (Xid[K], error) {
	id, err := src.NewID()
	if err != nil {
		return 0, err
	}
	return Xid[K](id), nil
}

// IDRange allocates ids from the base and mask the server hands out during
// connection setup. The mask is a contiguous run of bits; ids are base | n
// for n stepping through the mask by its lowest bit.
type IDRange struct {
	mu    sync.Mutex
	base  uint32
	mask  uint32
	inc   uint32
	next  uint32
	spent bool
}

func NewIDRange(base, mask uint32) *IDRange {
	return &IDRange{base: base, mask: mask, inc: mask & -mask}
}

func (r *IDRange) NewID() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.inc == 0 || r.spent {
			return 0, ErrIDsExhausted
		}
		id := r.base | r.next
		if r.next == r.mask {
			r.spent = true
		} else {
			r.next += r.inc
		}
		// Zero is None and never names a resource.
		if id != 0 {
			return id, nil
		}
	}
}
