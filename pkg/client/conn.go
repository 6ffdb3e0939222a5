// Package client is a connection to a display server: it puts requests on
// the wire in sequence order, routes replies and errors back to the request
// that caused them and queues events for whoever waits on them.
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fr3shw3b/xwire/pkg/correlation"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultFlushThreshold = 16 * 1024

// ErrConnectionClosed is returned by every operation once the connection
// has shut down. The error that caused the shutdown is joined to it.
var ErrConnectionClosed = correlation.ErrConnectionClosed

type ConnParams struct {
	// ByteOrder is the order negotiated at setup. Defaults to little endian.
	ByteOrder binary.ByteOrder
	// SequenceWindow bounds how many sequence numbers may be outstanding
	// before a round trip is forced.
	SequenceWindow uint64
	// FlushThreshold is the buffered byte count that triggers a write.
	FlushThreshold int
	// MaxRequestUnits is the maximum request length from the setup reply.
	MaxRequestUnits uint32
	// MaxMessageBytes bounds a single inbound message.
	MaxMessageBytes int
	// Core overrides the core event and error table.
	Core *xproto.Table
	// IDs hands out resource ids, if the caller has a range.
	IDs     xproto.XidSource
	Metrics *Metrics
}

// Conn is one connection. It is safe for concurrent use.
type Conn struct {
	params   *ConnParams
	order    binary.ByteOrder
	stream   io.ReadWriteCloser
	table    correlation.Table
	registry *registry.Registry
	logger   *logrus.Entry
	metrics  *Metrics

	// outMu guards sequence allocation together with the outbound buffer,
	// so the server sees requests in the order their numbers were issued.
	outMu  sync.Mutex
	out    []byte
	limits wire.Limits

	// flushMu admits one forced round trip at a time; flushGen counts them.
	flushMu  sync.Mutex
	flushGen atomic.Uint64

	events *eventQueue
	// lastSeq is the newest sequence number seen inbound. Only the router
	// touches it.
	lastSeq uint64

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
	routerDone chan struct{}
}

// NewConn takes over stream, on which setup has already completed, and
// starts routing inbound messages.
func NewConn(params *ConnParams, stream io.ReadWriteCloser, logger *logrus.Logger) *Conn {
	if params == nil {
		params = &ConnParams{}
	}
	order := params.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	core := xproto.CoreTable()
	if params.Core != nil {
		core = *params.Core
	}
	if params.FlushThreshold <= 0 {
		params.FlushThreshold = DefaultFlushThreshold
	}
	limits := wire.DefaultLimits()
	if params.MaxRequestUnits > 0 && params.MaxRequestUnits < limits.MaxUnits {
		limits.MaxUnits = params.MaxRequestUnits
	}

	table := correlation.NewInMemoryTable(&correlation.InMemoryTableParams{
		Window: params.SequenceWindow,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		params:     params,
		order:      order,
		stream:     stream,
		table:      table,
		registry:   registry.New(core, logger),
		logger:     logger.WithField("conn", uuid.New().String()),
		metrics:    params.Metrics,
		limits:     limits,
		events:     newEventQueue(),
		ctx:        ctx,
		cancel:     cancel,
		routerDone: make(chan struct{}),
	}
	go c.route()
	return c
}

// Connect runs hs on stream and returns a connection configured from the
// setup it produced.
func Connect(ctx context.Context, stream io.ReadWriteCloser, hs Handshaker, params *ConnParams, logger *logrus.Logger) (*Conn, error) {
	setup, err := hs.Handshake(ctx, stream)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}
	p := ConnParams{}
	if params != nil {
		p = *params
	}
	p.ByteOrder = setup.ByteOrder
	p.MaxRequestUnits = uint32(setup.MaxRequestUnits)
	if setup.IDs != nil {
		p.IDs = setup.IDs
	}
	return NewConn(&p, stream, logger), nil
}

func (c *Conn) ByteOrder() binary.ByteOrder {
	return c.order
}

func (c *Conn) Registry() *registry.Registry {
	return c.registry
}

// NewID draws a resource id from the range given at setup.
func (c *Conn) NewID() (uint32, error) {
	if c.params.IDs == nil {
		return 0, errors.New("client: connection has no resource id range")
	}
	return c.params.IDs.NewID()
}

// Extension resolves ext, failing with registry.ErrUnsupportedExtension if
// the server lacks it.
func (c *Conn) Extension(ctx context.Context, ext *registry.Extension) (*registry.Descriptor, error) {
	return c.registry.Require(ctx, c, ext)
}

// QueryExtension implements registry.Querier with one round trip.
func (c *Conn) QueryExtension(ctx context.Context, name string) (xproto.QueryExtensionReply, error) {
	cookie, err := Send(c, xproto.QueryExtension(name), xproto.DecodeQueryExtensionReply)
	if err != nil {
		return xproto.QueryExtensionReply{}, err
	}
	return cookie.Reply(ctx)
}

// Err returns the reason the connection shut down, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.ctx.Done():
		return c.closeErr
	default:
		return nil
	}
}

// Close flushes buffered requests and shuts the connection down. Pending
// requests fail with ErrConnectionClosed.
func (c *Conn) Close() error {
	flushErr := c.Flush()
	c.shutdown(nil)
	<-c.routerDone
	if flushErr != nil && !errors.Is(flushErr, ErrConnectionClosed) {
		return flushErr
	}
	return nil
}

// shutdown ends the connection with cause. Only the first call has effect.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		err := ErrConnectionClosed
		if cause != nil {
			err = errors.Join(ErrConnectionClosed, cause)
			c.logger.WithError(cause).Error("connection shut down")
		} else {
			c.logger.Debug("connection closed")
		}
		c.closeErr = err
		c.cancel()
		c.table.Close(err)
		c.events.close(err)
		c.metrics.setPending(0)
		if closeErr := c.stream.Close(); closeErr != nil {
			c.logger.Debug("closing stream: ", closeErr)
		}
	})
}
