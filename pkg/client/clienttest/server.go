// Package clienttest provides an in-memory display server for tests. It
// reads requests the way a server does, counting sequence numbers, and lets
// a handler answer with replies, errors and events.
package clienttest

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// Request is one request as the server received it.
type Request struct {
	Seq   uint16
	Major uint8
	Data  uint8
	// Body follows the length field (and the extended length of a big
	// request).
	Body []byte
}

// Handler answers one request. It runs on the server goroutine, so requests
// are handled strictly in order.
type Handler func(r *Responder, req Request)

type Server struct {
	order    binary.ByteOrder
	conn     net.Conn
	handler  Handler
	mu       sync.Mutex
	requests []Request
	done     chan struct{}
	// Extensions answers QueryExtension in DefaultHandler.
	Extensions map[string]xproto.QueryExtensionReply
}

// NewServer starts a server and returns it with the client end of the
// stream. A nil handler uses DefaultHandler.
func NewServer(order binary.ByteOrder, handler Handler) (*Server, net.Conn) {
	serverEnd, clientEnd := net.Pipe()
	s := &Server{
		order:      order,
		conn:       serverEnd,
		done:       make(chan struct{}),
		Extensions: map[string]xproto.QueryExtensionReply{},
	}
	if handler == nil {
		handler = s.DefaultHandler
	}
	s.handler = handler
	go s.serve()
	return s, clientEnd
}

func (s *Server) serve() {
	defer close(s.done)
	r := &Responder{order: s.order, conn: s.conn}
	var seq uint16
	for {
		req, err := s.readRequest()
		if err != nil {
			return
		}
		seq++
		req.Seq = seq
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
		s.handler(r, req)
	}
}

func (s *Server) readRequest() (Request, error) {
	var head [4]byte
	if _, err := io.ReadFull(s.conn, head[:]); err != nil {
		return Request{}, err
	}
	units := uint32(s.order.Uint16(head[2:4]))
	headLen := uint32(4)
	if units == 0 {
		var ext [4]byte
		if _, err := io.ReadFull(s.conn, ext[:]); err != nil {
			return Request{}, err
		}
		units = s.order.Uint32(ext[:])
		headLen = 8
	}
	body := make([]byte, units*4-headLen)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return Request{}, err
	}
	return Request{Major: head[0], Data: head[1], Body: body}, nil
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Close tears down the stream and waits for the server goroutine.
func (s *Server) Close() {
	s.conn.Close()
	<-s.done
}

// DefaultHandler answers GetInputFocus and QueryExtension and ignores
// everything else.
func (s *Server) DefaultHandler(r *Responder, req Request) {
	switch req.Major {
	case xproto.OpGetInputFocus:
		r.Reply(req.Seq, 1, make([]byte, 24))
	case xproto.OpQueryExtension:
		d := wire.NewDecoder(s.order, req.Body)
		n, _ := d.Get16()
		_ = d.Skip(2)
		name, _ := d.GetString(int(n))
		ext := s.Extensions[name]
		body := make([]byte, 24)
		if ext.Present {
			body[0] = 1
		}
		body[1], body[2], body[3] = ext.MajorOpcode, ext.FirstEvent, ext.FirstError
		r.Reply(req.Seq, 0, body)
	}
}

// Responder writes server messages.
type Responder struct {
	order binary.ByteOrder
	conn  net.Conn
}

func (r *Responder) Order() binary.ByteOrder {
	return r.order
}

// Reply writes a reply. body is everything after the 8-byte header; it is
// zero-filled to the 24 bytes of the fixed part and padded to 4.
func (r *Responder) Reply(seq uint16, data uint8, body []byte) {
	if len(body) < 24 {
		body = append(body, make([]byte, 24-len(body))...)
	}
	body = append(body, make([]byte, wire.Pad(len(body)))...)
	msg := make([]byte, 8, 8+len(body))
	msg[0] = wire.ResponseReply
	msg[1] = data
	r.order.PutUint16(msg[2:4], seq)
	r.order.PutUint32(msg[4:8], uint32((len(body)-24)/4))
	r.Write(append(msg, body...))
}

// Error writes a 32-byte error.
func (r *Responder) Error(code uint8, seq uint16, badValue uint32, major uint8, minor uint16) {
	h := xproto.ErrorHeader{Code: code, Sequence: seq, BadValue: badValue, MajorOpcode: major, MinorOpcode: minor}
	r.Write(wire.Encode(r.order, &h))
}

// Event writes an encoded event.
func (r *Responder) Event(ev wire.Marshaler) {
	r.Write(wire.Encode(r.order, ev))
}

// Write sends raw bytes. Errors mean the client went away and are ignored.
func (r *Responder) Write(b []byte) {
	_, _ = r.conn.Write(b)
}
