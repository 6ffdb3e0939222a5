package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/correlation"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Send dispatches a request that has a reply.
func Send[R any](c *Conn, req wire.Request, decode ReplyDecoder[R]) (Cookie[R], error) {
	e, err := c.submit(req, correlation.KindValue)
	if err != nil {
		return Cookie[R]{}, err
	}
	return Cookie[R]{conn: c, entry: e, decode: decode, name: req.Name}, nil
}

// SendVoid dispatches a request without a reply. If it fails, the error is
// delivered on the event stream as an *xproto.AsyncError.
func (c *Conn) SendVoid(req wire.Request) (VoidCookie, error) {
	e, err := c.submit(req, correlation.KindVoid)
	if err != nil {
		return VoidCookie{}, err
	}
	return VoidCookie{seq: e.Seq}, nil
}

// SendChecked dispatches a request without a reply whose error, if any, is
// returned by the cookie's Check.
func (c *Conn) SendChecked(req wire.Request) (CheckedCookie, error) {
	e, err := c.submit(req, correlation.KindCheckedVoid)
	if err != nil {
		return CheckedCookie{}, err
	}
	return CheckedCookie{conn: c, entry: e, name: req.Name}, nil
}

func (c *Conn) submit(req wire.Request, kind correlation.Kind) (*correlation.Entry, error) {
	for {
		gen := c.flushGeneration()
		e, err := c.enqueue(req, kind, false)
		if !errors.Is(err, correlation.ErrSequenceExhausted) {
			return e, err
		}
		if err := c.forceFlush(gen); err != nil {
			return nil, err
		}
	}
}

// enqueue encodes req, allocates its sequence number and buffers it, all
// under outMu.
func (c *Conn) enqueue(req wire.Request, kind correlation.Kind, flushing bool) (*correlation.Entry, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if err := c.Err(); err != nil {
		return nil, err
	}
	// Encoding first keeps a request that cannot be sent from consuming a
	// sequence number.
	prev := len(c.out)
	buf, err := req.AppendTo(c.out, c.order, c.limits)
	if err != nil {
		return nil, err
	}
	var e *correlation.Entry
	if flushing {
		e, err = c.table.RegisterFlush(kind)
	} else {
		e, err = c.table.Register(kind)
	}
	if err != nil {
		c.out = buf[:prev]
		return nil, err
	}
	c.out = buf
	c.metrics.request(kind.String())
	c.metrics.setPending(c.table.Len())
	c.logger.Debug("dispatched ", req.Name, " seq ", e.Seq, " kind ", kind)

	if len(c.out) >= c.params.FlushThreshold {
		if err := c.flushLocked(); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Flush writes every buffered request.
func (c *Conn) Flush() error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.flushLocked()
}

func (c *Conn) flushLocked() error {
	if len(c.out) == 0 {
		return nil
	}
	if err := c.Err(); err != nil {
		return err
	}
	_, err := c.stream.Write(c.out)
	c.out = c.out[:0]
	if err != nil {
		c.shutdown(fmt.Errorf("write: %w", err))
		return c.closeErr
	}
	return nil
}

func (c *Conn) flushGeneration() uint64 {
	return c.flushGen.Load()
}

// forceFlush relieves sequence exhaustion with one GetInputFocus round
// trip: its reply completes every request issued before it. Callers that
// queued behind a flush that already happened return at once.
func (c *Conn) forceFlush(seen uint64) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	if c.flushGen.Load() != seen {
		return nil
	}

	e, err := c.enqueue(xproto.GetInputFocus(), correlation.KindValue, true)
	if err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}
	c.logger.Debug("sequence window exhausted, waiting for sync seq ", e.Seq)
	out, err := e.Wait(c.ctx)
	if err != nil {
		return c.Err()
	}
	if out.Err != nil && !errors.Is(out.Err, xproto.ErrProtocol) {
		return out.Err
	}
	c.flushGen.Add(1)
	c.metrics.forcedFlush()
	return nil
}

// Sync waits for a round trip, after which every request sent before it
// has been processed by the server.
func (c *Conn) Sync(ctx context.Context) error {
	cookie, err := Send(c, xproto.GetInputFocus(), xproto.DecodeGetInputFocusReply)
	if err != nil {
		return err
	}
	_, err = cookie.Reply(ctx)
	return err
}

// EnableBigRequests lets requests up to maxUnits 4-byte units use the
// extended length form. It is called once the server has enabled the
// BIG-REQUESTS extension.
func (c *Conn) EnableBigRequests(maxUnits uint32) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.limits = wire.Limits{MaxUnits: maxUnits, BigRequests: true}
	c.logger.Debug("big requests enabled, maximum length ", maxUnits, " units")
}

// MaximumRequestLength is the longest request, in 4-byte units, the
// connection will send.
func (c *Conn) MaximumRequestLength() uint32 {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.limits.MaxUnits
}
