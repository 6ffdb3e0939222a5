package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/correlation"
)

var errInvalidCookie = errors.New("client: cookie was not returned by a send")

// Cookie is the handle on a request with a reply of type R.
type Cookie[R any] struct {
	conn   *Conn
	entry  *correlation.Entry
	decode ReplyDecoder[R]
	name   string
}

func (ck Cookie[R]) Sequence() uint64 {
	if ck.entry == nil {
		return 0
	}
	return ck.entry.Seq
}

// Reply flushes the connection if needed and waits for the reply. A server
// error comes back as an xproto.Error.
func (ck Cookie[R]) Reply(ctx context.Context) (R, error) {
	var zero R
	if ck.entry == nil {
		return zero, errInvalidCookie
	}
	if _, ok := ck.entry.Outcome(); !ok {
		if err := ck.conn.Flush(); err != nil {
			return zero, err
		}
	}
	out, err := ck.entry.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if out.Err != nil {
		return zero, out.Err
	}
	r, err := ck.decode(ck.conn.order, out.Reply)
	if err != nil {
		return zero, fmt.Errorf("%s reply: %w", ck.name, err)
	}
	return r, nil
}

// Discard gives up on the reply. If the request fails, its error is
// delivered on the event stream instead.
func (ck Cookie[R]) Discard() {
	if ck.entry == nil {
		return
	}
	ck.conn.table.Abandon(ck.entry.Seq)
}

// VoidCookie is the handle on an unchecked request without a reply.
type VoidCookie struct {
	seq uint64
}

func (ck VoidCookie) Sequence() uint64 {
	return ck.seq
}

// CheckedCookie is the handle on a request without a reply whose failure
// the caller wants to see. Dropping it without calling Check loses the
// error.
type CheckedCookie struct {
	conn  *Conn
	entry *correlation.Entry
	name  string
}

func (ck CheckedCookie) Sequence() uint64 {
	if ck.entry == nil {
		return 0
	}
	return ck.entry.Seq
}

// Check waits until the server has processed the request and returns its
// error, if any. A void request has no reply, so unless a later response
// has already settled it, Check issues a round trip of its own.
func (ck CheckedCookie) Check(ctx context.Context) error {
	if ck.entry == nil {
		return errInvalidCookie
	}
	if _, ok := ck.entry.Outcome(); !ok {
		if err := ck.conn.Sync(ctx); err != nil {
			return err
		}
	}
	out, err := ck.entry.Wait(ctx)
	if err != nil {
		return err
	}
	return out.Err
}
