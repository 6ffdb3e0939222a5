package client

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// ReplyDecoder turns the raw bytes of a reply into its typed form.
type ReplyDecoder[R any] func(order binary.ByteOrder, msg []byte) (R, error)

// Setup is what a connection needs from the setup handshake.
type Setup struct {
	ByteOrder binary.ByteOrder
	// MaxRequestUnits is the server's maximum request length in 4-byte units.
	MaxRequestUnits uint16
	// IDs hands out resource ids from the range the server assigned.
	IDs xproto.XidSource
}

// Handshaker performs the connection setup exchange on a fresh stream. It
// is provided by the caller together with the transport.
type Handshaker interface {
	Handshake(ctx context.Context, stream io.ReadWriter) (Setup, error)
}
