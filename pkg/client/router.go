package client

import (
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/correlation"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// route is the only reader of the stream. Anything it cannot place shuts
// the connection down, since the byte alignment of what follows is lost.
func (c *Conn) route() {
	defer close(c.routerDone)
	for {
		msg, err := wire.ReadMessage(c.stream, c.order, c.params.MaxMessageBytes)
		if err != nil {
			// A read failing after Close is the stream being torn down.
			if c.Err() == nil {
				c.shutdown(fmt.Errorf("read: %w", err))
			}
			return
		}
		if err := c.handle(msg); err != nil {
			c.shutdown(err)
			return
		}
	}
}

func (c *Conn) handle(msg []byte) error {
	switch msg[0] {
	case wire.ResponseError:
		return c.handleError(msg)
	case wire.ResponseReply:
		return c.handleReply(msg)
	}
	return c.handleEvent(msg)
}

// widen maps a wire sequence number of a reply or error and rejects one
// the connection never issued.
func (c *Conn) widen(wireSeq uint16) (uint64, error) {
	seq := c.table.Widen(wireSeq)
	if issued := c.table.Issued(); seq > issued || seq == 0 {
		return 0, fmt.Errorf("%w: response for sequence %d, last issued %d", wire.ErrMalformed, seq, issued)
	}
	c.seen(seq)
	return seq, nil
}

func (c *Conn) handleReply(msg []byte) error {
	seq, err := c.widen(c.order.Uint16(msg[2:4]))
	if err != nil {
		return err
	}
	c.table.Complete(seq)
	kind, err := c.table.Resolve(seq, correlation.Outcome{Reply: msg})
	if err != nil {
		return fmt.Errorf("%w: reply: %w", wire.ErrMalformed, err)
	}
	if kind == correlation.KindCheckedVoid || kind == correlation.KindVoid {
		return fmt.Errorf("%w: reply to void request %d", wire.ErrMalformed, seq)
	}
	c.metrics.reply()
	c.metrics.setPending(c.table.Len())
	c.logger.Debug("reply for seq ", seq, " (", len(msg), " bytes)")
	return nil
}

func (c *Conn) handleError(msg []byte) error {
	xerr, err := c.registry.BuildError(c.order, msg)
	if err != nil {
		return err
	}
	h := xerr.Details()
	if h.Seq, err = c.widen(h.Sequence); err != nil {
		return err
	}
	c.table.Complete(h.Seq)
	kind, err := c.table.Resolve(h.Seq, correlation.Outcome{Err: xerr})
	if err != nil {
		return fmt.Errorf("%w: error: %w", wire.ErrMalformed, err)
	}
	c.metrics.setPending(c.table.Len())
	if !kind.Waited() {
		c.logger.Warn("asynchronous ", xerr)
		c.metrics.protocolError("async")
		c.events.push(xproto.NewAsyncError(xerr))
		return nil
	}
	c.logger.Debug("error for seq ", h.Seq, ": ", xerr)
	c.metrics.protocolError("checked")
	return nil
}

func (c *Conn) handleEvent(msg []byte) error {
	ev, err := c.registry.BuildEvent(c.order, msg)
	if err != nil {
		return err
	}
	h := ev.Header()
	if _, ok := ev.(xproto.Sequenceless); ok {
		h.Seq = c.lastSeq
	} else {
		// Unlike a reply, an event may legitimately name a request the
		// server has not answered yet, but never one not yet issued.
		h.Seq = c.table.Widen(h.Sequence)
		if issued := c.table.Issued(); h.Seq > issued {
			h.Seq = issued
		}
		c.seen(h.Seq)
	}
	c.metrics.event(h.Extension)
	c.events.push(ev)
	return nil
}

func (c *Conn) seen(seq uint64) {
	if seq > c.lastSeq {
		c.lastSeq = seq
	}
}
