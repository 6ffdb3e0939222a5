package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fr3shw3b/xwire/pkg/client/clienttest"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

var order = binary.LittleEndian

// atomHandler answers InternAtom with the sequence number the server
// counted, GetInputFocus like a server, and MapWindow of window 0xbad with
// a Window error.
func atomHandler(r *clienttest.Responder, req clienttest.Request) {
	switch req.Major {
	case xproto.OpInternAtom:
		body := make([]byte, 24)
		order.PutUint32(body[0:4], uint32(req.Seq))
		r.Reply(req.Seq, 0, body)
	case xproto.OpGetInputFocus:
		r.Reply(req.Seq, 1, make([]byte, 24))
	case xproto.OpMapWindow:
		if order.Uint32(req.Body[0:4]) == 0xbad {
			r.Error(xproto.BadWindow, req.Seq, 0xbad, xproto.OpMapWindow, 0)
		}
	}
}

func createTestConn(handler clienttest.Handler, params *ConnParams) (*Conn, *clienttest.Server) {
	server, stream := clienttest.NewServer(order, handler)
	if params == nil {
		params = &ConnParams{}
	}
	params.ByteOrder = order
	return NewConn(params, stream, createLogger()), server
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func Test_concurrent_requests_reach_the_server_in_sequence_order(t *testing.T) {
	conn, server := createTestConn(atomHandler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				cookie, err := Send(conn, xproto.InternAtom(false, fmt.Sprintf("ATOM_%d_%d", w, i)), xproto.DecodeInternAtomReply)
				if err != nil {
					t.Error(err)
					return
				}
				reply, err := cookie.Reply(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				// The server answers with its own count, so the two agree
				// only if requests hit the wire in allocation order.
				if uint64(reply.Atom) != cookie.Sequence() {
					t.Errorf("sequence %d reached the server as request %d", cookie.Sequence(), reply.Atom)
				}
			}
		}(w)
	}
	wg.Wait()

	requests := server.Requests()
	if len(requests) != workers*perWorker {
		t.Error("expected every request on the wire, got ", len(requests))
	}
	for i, req := range requests {
		if req.Seq != uint16(i+1) {
			t.Errorf("request %d has sequence %d", i, req.Seq)
		}
	}
}

func Test_checked_void_request_returns_its_error(t *testing.T) {
	conn, server := createTestConn(atomHandler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := conn.SendChecked(xproto.MapWindow(0xbad))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	err = cookie.Check(ctx)
	var winErr *xproto.WindowError
	if !errors.As(err, &winErr) {
		t.Errorf("expected *xproto.WindowError, got %v", err)
		t.FailNow()
	}
	if winErr.BadValue != 0xbad || winErr.Seq != cookie.Sequence() {
		t.Errorf("unexpected error details %+v", winErr.Details())
	}
	if ev, _ := conn.PollForEvent(); ev != nil {
		t.Errorf("expected no event for a checked error, got %T", ev)
	}

	ok, err := conn.SendChecked(xproto.MapWindow(0x600001))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := ok.Check(ctx); err != nil {
		t.Error("expected a successful request to check clean, got: ", err)
	}
}

func Test_unchecked_void_error_is_delivered_as_an_event(t *testing.T) {
	conn, server := createTestConn(atomHandler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := conn.SendVoid(xproto.MapWindow(0xbad))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := conn.Flush(); err != nil {
		t.Error(err)
		t.FailNow()
	}
	ev, err := conn.WaitForEvent(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	async, ok := ev.(*xproto.AsyncError)
	if !ok {
		t.Errorf("expected *xproto.AsyncError, got %T", ev)
		t.FailNow()
	}
	if _, ok := async.Err.(*xproto.WindowError); !ok || async.Seq != cookie.Sequence() {
		t.Errorf("unexpected async error %v for seq %d", async.Err, async.Seq)
	}
}

func Test_discarded_cookie_error_is_delivered_as_an_event(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major == xproto.OpGetAtomName {
			r.Error(xproto.BadAtom, req.Seq, 999, xproto.OpGetAtomName, 0)
			return
		}
		atomHandler(r, req)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := Send(conn, xproto.GetAtomName(999), xproto.DecodeGetAtomNameReply)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	cookie.Discard()
	if err := conn.Flush(); err != nil {
		t.Error(err)
		t.FailNow()
	}
	ev, err := conn.WaitForEvent(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if async, ok := ev.(*xproto.AsyncError); !ok || !errors.Is(async.Err, xproto.ErrProtocol) {
		t.Errorf("expected an async Atom error, got %T", ev)
	}
}

func Test_events_keep_arrival_order_while_waiting_for_a_later_one(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major != xproto.OpInternAtom {
			return
		}
		r.Event(&xproto.ExposeEvent{EventHeader: xproto.EventHeader{Code: xproto.Expose, Sequence: req.Seq - 1}, Window: 1})
		r.Event(&xproto.MapNotifyEvent{EventHeader: xproto.EventHeader{Code: xproto.MapNotify, Sequence: req.Seq}, Window: 2})
		atomHandler(r, req)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	conn.SendVoid(xproto.NoOperation())
	cookie, err := Send(conn, xproto.InternAtom(false, "X"), xproto.DecodeInternAtomReply)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if _, err := cookie.Reply(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}

	ev, err := conn.WaitForEventAfter(ctx, cookie.Sequence())
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if _, ok := ev.(*xproto.MapNotifyEvent); !ok {
		t.Errorf("expected MapNotify, got %T", ev)
	}
	ev, err = conn.WaitForEvent(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if expose, ok := ev.(*xproto.ExposeEvent); !ok || expose.Seq != 1 {
		t.Errorf("expected the earlier Expose to stay queued, got %T", ev)
	}
}

func Test_exhausted_window_forces_a_round_trip(t *testing.T) {
	metrics := NewMetrics(nil)
	conn, server := createTestConn(atomHandler, &ConnParams{SequenceWindow: 4, Metrics: metrics})
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	for i := 0; i < 20; i++ {
		if _, err := conn.SendVoid(xproto.NoOperation()); err != nil {
			t.Error(err)
			t.FailNow()
		}
	}
	if err := conn.Sync(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}

	syncs := 0
	for _, req := range server.Requests() {
		if req.Major == xproto.OpGetInputFocus {
			syncs++
		}
	}
	flushes := int(testutil.ToFloat64(metrics.forcedFlushes))
	if flushes == 0 || syncs != flushes+1 {
		t.Errorf("expected forced round trips, flushes=%d syncs=%d", flushes, syncs)
	}
	if conn.table.Len() != 0 {
		t.Error("expected nothing pending after the final sync, got ", conn.table.Len())
	}
}

func Test_unowned_event_code_closes_the_connection(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		msg := make([]byte, wire.MessageSize)
		msg[0] = 100
		r.Write(msg)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := Send(conn, xproto.InternAtom(false, "X"), xproto.DecodeInternAtomReply)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	_, err = cookie.Reply(ctx)
	if !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, wire.ErrMalformed) {
		t.Error("expected ErrConnectionClosed joined with ErrMalformed, got: ", err)
	}
	if _, err := conn.SendVoid(xproto.NoOperation()); !errors.Is(err, ErrConnectionClosed) {
		t.Error("expected later sends to fail fast, got: ", err)
	}
	if _, err := conn.WaitForEvent(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Error("expected the event stream to report the close, got: ", err)
	}
}

func Test_reply_to_an_unissued_sequence_is_malformed(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		r.Reply(req.Seq+5, 0, nil)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, _ := Send(conn, xproto.InternAtom(false, "X"), xproto.DecodeInternAtomReply)
	if _, err := cookie.Reply(ctx); !errors.Is(err, wire.ErrMalformed) {
		t.Error("expected ErrMalformed, got: ", err)
	}
}

func Test_reply_to_an_unchecked_void_request_is_malformed(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major == xproto.OpNoOperation {
			r.Reply(req.Seq, 0, nil)
			return
		}
		atomHandler(r, req)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	ctx, cancel := testContext()
	defer cancel()

	if _, err := conn.SendVoid(xproto.NoOperation()); err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := conn.Sync(ctx); !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, wire.ErrMalformed) {
		t.Error("expected ErrConnectionClosed joined with ErrMalformed, got: ", err)
	}
}

func Test_event_sequence_never_runs_ahead_of_the_issued_requests(t *testing.T) {
	handler := func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major != xproto.OpInternAtom {
			return
		}
		if req.Seq == 1 {
			r.Event(&xproto.ExposeEvent{EventHeader: xproto.EventHeader{Code: xproto.Expose, Sequence: 0xffff}, Window: 1})
			// KeymapNotify has key bits where other events carry the
			// sequence number.
			msg := make([]byte, wire.MessageSize)
			msg[0] = xproto.KeymapNotify
			msg[1] = 0x10
			msg[2], msg[3] = 0xff, 0xff
			r.Write(msg)
		} else {
			r.Event(&xproto.MapNotifyEvent{EventHeader: xproto.EventHeader{Code: xproto.MapNotify, Sequence: req.Seq}, Window: 2})
		}
		atomHandler(r, req)
	}
	conn, server := createTestConn(handler, nil)
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	var last uint64
	for i := 0; i < 2; i++ {
		cookie, err := Send(conn, xproto.InternAtom(false, "X"), xproto.DecodeInternAtomReply)
		if err != nil {
			t.Error(err)
			t.FailNow()
		}
		if _, err := cookie.Reply(ctx); err != nil {
			t.Error(err)
			t.FailNow()
		}
		last = cookie.Sequence()
	}

	ev, err := conn.WaitForEventAfter(ctx, last)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if _, ok := ev.(*xproto.MapNotifyEvent); !ok {
		t.Errorf("expected MapNotify, got %T with seq %d", ev, ev.Header().Seq)
		t.FailNow()
	}
	ev, err = conn.WaitForEvent(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if expose, ok := ev.(*xproto.ExposeEvent); !ok || expose.Seq != 1 {
		t.Errorf("expected Expose clamped to seq 1, got %T with seq %d", ev, ev.Header().Seq)
	}
	ev, err = conn.WaitForEvent(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	keymap, ok := ev.(*xproto.KeymapNotifyEvent)
	if !ok {
		t.Errorf("expected KeymapNotify, got %T", ev)
		t.FailNow()
	}
	if keymap.Seq != 1 || keymap.Keys[0] != 0x10 || keymap.Keys[1] != 0xff || keymap.Keys[2] != 0xff {
		t.Errorf("unexpected keymap event %+v", keymap)
	}
}

func Test_close_fails_pending_cookies(t *testing.T) {
	silent := func(r *clienttest.Responder, req clienttest.Request) {}
	conn, server := createTestConn(silent, nil)
	defer server.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, _ := Send(conn, xproto.InternAtom(false, "X"), xproto.DecodeInternAtomReply)
	if err := conn.Flush(); err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := conn.Close(); err != nil {
		t.Error(err)
	}
	if _, err := cookie.Reply(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Error("expected ErrConnectionClosed, got: ", err)
	}
}

func Test_requests_beyond_the_maximum_length_are_rejected(t *testing.T) {
	conn, server := createTestConn(atomHandler, &ConnParams{MaxRequestUnits: 8})
	defer server.Close()
	defer conn.Close()

	long, err := xproto.ChangeProperty(xproto.PropModeReplace, 1, xproto.AtomWMName, xproto.AtomString, xproto.Property8(make([]byte, 64)))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if _, err := conn.SendVoid(long); !errors.Is(err, wire.ErrRequestTooLarge) {
		t.Error("expected ErrRequestTooLarge, got: ", err)
	}
	// The rejected request must not have consumed a sequence number.
	cookie, err := conn.SendVoid(xproto.NoOperation())
	if err != nil || cookie.Sequence() != 1 {
		t.Error("expected sequence 1, got ", cookie.Sequence(), err)
	}

	conn.EnableBigRequests(1 << 20)
	if _, err := conn.SendVoid(long); err != nil {
		t.Error("expected big requests to lift the limit, got: ", err)
	}
}

type fakeHandshaker struct {
	setup Setup
}

func (h fakeHandshaker) Handshake(ctx context.Context, stream io.ReadWriter) (Setup, error) {
	return h.setup, nil
}

func Test_connect_applies_the_setup(t *testing.T) {
	server, stream := clienttest.NewServer(binary.BigEndian, nil)
	defer server.Close()
	hs := fakeHandshaker{setup: Setup{
		ByteOrder:       binary.BigEndian,
		MaxRequestUnits: 0x4000,
		IDs:             xproto.NewIDRange(0x00a00000, 0x001fffff),
	}}
	conn, err := Connect(context.Background(), stream, hs, nil, createLogger())
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	defer conn.Close()

	if conn.ByteOrder() != binary.BigEndian || conn.MaximumRequestLength() != 0x4000 {
		t.Error("expected the setup to configure the connection")
	}
	id, err := conn.NewID()
	if err != nil || id != 0x00a00000 {
		t.Errorf("unexpected id %#x %v", id, err)
	}
	ctx, cancel := testContext()
	defer cancel()
	if err := conn.Sync(ctx); err != nil {
		t.Error(err)
	}
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
