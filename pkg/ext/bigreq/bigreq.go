// Package bigreq binds the BIG-REQUESTS extension, which lets requests
// exceed the 0xffff-unit length field.
package bigreq

import (
	"context"
	"encoding/binary"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
)

var Extension = &registry.Extension{Name: "BIG-REQUESTS"}

const OpEnable uint8 = 0

func EnableRequest(major uint8) wire.Request {
	return wire.Request{Name: "BigRequestsEnable", Major: major, Data: OpEnable}
}

type EnableReply struct {
	// MaximumRequestLength is in 4-byte units.
	MaximumRequestLength uint32
}

func DecodeEnableReply(order binary.ByteOrder, msg []byte) (EnableReply, error) {
	d, _, err := wire.ReplyDecoder(order, msg)
	if err != nil {
		return EnableReply{}, err
	}
	n, err := d.Get32()
	return EnableReply{MaximumRequestLength: n}, err
}

// Enable turns the extension on for c and raises its request length limit.
// It fails with registry.ErrUnsupportedExtension if the server lacks it.
func Enable(ctx context.Context, c *client.Conn) (EnableReply, error) {
	d, err := c.Extension(ctx, Extension)
	if err != nil {
		return EnableReply{}, err
	}
	cookie, err := client.Send(c, EnableRequest(d.MajorOpcode), DecodeEnableReply)
	if err != nil {
		return EnableReply{}, err
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		return EnableReply{}, err
	}
	c.EnableBigRequests(reply.MaximumRequestLength)
	return reply, nil
}
