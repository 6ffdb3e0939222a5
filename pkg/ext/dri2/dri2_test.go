package dri2

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/client/clienttest"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/sirupsen/logrus"
)

const (
	testMajor      = 140
	testFirstEvent = 90
)

var order = binary.BigEndian

// dri2Handler plays a DRI2 server with a driver name that needs padding
// and two back buffers.
func dri2Handler(server **clienttest.Server) clienttest.Handler {
	return func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major != testMajor {
			(*server).DefaultHandler(r, req)
			return
		}
		switch req.Data {
		case OpQueryVersion:
			r.Reply(req.Seq, 0, req.Body[:8])
		case OpConnect:
			driver, device := "i965x", "/dev/dri/card0"
			body := make([]byte, 24)
			order.PutUint32(body[0:4], uint32(len(driver)))
			order.PutUint32(body[4:8], uint32(len(device)))
			body = append(body, driver...)
			body = append(body, 0, 0, 0)
			body = append(body, device...)
			r.Reply(req.Seq, 0, body)
		case OpGetBuffers:
			body := make([]byte, 24)
			order.PutUint32(body[0:4], 640)
			order.PutUint32(body[4:8], 480)
			order.PutUint32(body[8:12], 2)
			for i := uint32(0); i < 2; i++ {
				buf := make([]byte, 20)
				order.PutUint32(buf[0:4], AttachmentBufferBackLeft)
				order.PutUint32(buf[4:8], 100+i)
				order.PutUint32(buf[8:12], 2560)
				order.PutUint32(buf[12:16], 4)
				body = append(body, buf...)
			}
			r.Reply(req.Seq, 0, body)
		case OpSwapBuffers:
			// Echo the target msc halves as the swap count.
			r.Reply(req.Seq, 0, req.Body[4:12])
		case OpGetParam:
			body := make([]byte, 24)
			order.PutUint32(body[0:4], 1)
			order.PutUint32(body[4:8], 7)
			r.Reply(req.Seq, 1, body)
		case OpCreateDrawable:
			if order.Uint32(req.Body[0:4]) == 0xbad {
				r.Error(xproto.BadDrawable, req.Seq, 0xbad, testMajor, uint16(OpCreateDrawable))
			}
		case OpSwapInterval:
			ev := &InvalidateBuffersEvent{
				EventHeader: xproto.EventHeader{Code: testFirstEvent + InvalidateBuffers, Sequence: req.Seq},
				Drawable:    xproto.Drawable(order.Uint32(req.Body[0:4])),
			}
			r.Event(ev)
		}
	}
}

func createTestConn() (*client.Conn, *clienttest.Server) {
	var server *clienttest.Server
	server, stream := clienttest.NewServer(order, dri2Handler(&server))
	server.Extensions["DRI2"] = xproto.QueryExtensionReply{Present: true, MajorOpcode: testMajor, FirstEvent: testFirstEvent}
	return client.NewConn(&client.ConnParams{ByteOrder: order}, stream, createLogger()), server
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func Test_query_version_round_trips(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryVersion(ctx, conn, 1, 4)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.MajorVersion != 1 || reply.MinorVersion != 4 {
		t.Errorf("unexpected version %+v", reply)
	}
}

func Test_connect_skips_the_padding_between_names(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := Connect(ctx, conn, xproto.Window(0x200001), DriverTypeDRI)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.DriverName != "i965x" || reply.DeviceName != "/dev/dri/card0" {
		t.Errorf("unexpected names %q %q", reply.DriverName, reply.DeviceName)
	}
}

func Test_get_buffers_reads_the_counted_list(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := GetBuffers(ctx, conn, xproto.Drawable(0x200001), 2, []uint32{AttachmentBufferBackLeft, AttachmentBufferDepth})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.Width != 640 || reply.Height != 480 || len(reply.Buffers) != 2 {
		t.Errorf("unexpected reply %+v", reply)
		t.FailNow()
	}
	if reply.Buffers[1].Name != 101 || reply.Buffers[1].Pitch != 2560 || reply.Buffers[1].CPP != 4 {
		t.Errorf("unexpected second buffer %+v", reply.Buffers[1])
	}

	requests := server.Requests()
	body := requests[len(requests)-1].Body
	if len(body) != 16 || order.Uint32(body[12:16]) != AttachmentBufferDepth {
		t.Errorf("unexpected request body % x", body)
	}
}

func Test_swap_buffers_splits_counters_high_first(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	const target = 0x0000000500000007
	cookie, err := SwapBuffers(ctx, conn, xproto.Drawable(0x200001), target, 0, 0)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.Swap != target {
		t.Errorf("expected swap %#x, got %#x", uint64(target), reply.Swap)
	}
}

func Test_get_param_reads_the_recognized_flag_from_the_data_byte(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := GetParam(ctx, conn, xproto.Drawable(0x200001), 3)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if !reply.Recognized || reply.Value != 1<<32|7 {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func Test_checked_create_drawable_returns_a_core_error(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := CreateDrawableChecked(ctx, conn, xproto.Drawable(0xbad))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	err = cookie.Check(ctx)
	var drawableErr *xproto.DrawableError
	if !errors.As(err, &drawableErr) {
		t.Error("expected a Drawable error, got: ", err)
		t.FailNow()
	}
	if drawableErr.MajorOpcode != testMajor || drawableErr.MinorOpcode != uint16(OpCreateDrawable) {
		t.Errorf("unexpected opcodes %+v", drawableErr.Details())
	}
}

func Test_extension_events_are_built_with_their_offset(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	if _, err := SwapInterval(ctx, conn, xproto.Drawable(0x200001), 1); err != nil {
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
	invalidate, ok := ev.(*InvalidateBuffersEvent)
	if !ok {
		t.Errorf("expected InvalidateBuffersEvent, got %T", ev)
		t.FailNow()
	}
	if invalidate.Drawable != 0x200001 || invalidate.Extension != "DRI2" || invalidate.Code != testFirstEvent+InvalidateBuffers {
		t.Errorf("unexpected event %+v", invalidate)
	}
}

func Test_buffer_swap_complete_round_trips(t *testing.T) {
	reg := registry.New(xproto.CoreTable(), createLogger())
	reg.Install(Extension, testMajor, testFirstEvent, 0)
	in := &BufferSwapCompleteEvent{
		EventHeader: xproto.EventHeader{Code: testFirstEvent + BufferSwapComplete, Sequence: 9},
		EventType:   EventTypeFlipComplete,
		Drawable:    0x400002,
		UST:         1<<40 | 3,
		MSC:         99,
		SBC:         12,
	}
	msg := wire.Encode(order, in)
	if len(msg) != 32 {
		t.Error("expected a 32 byte event, got ", len(msg))
		t.FailNow()
	}
	ev, err := reg.BuildEvent(order, msg)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	out, ok := ev.(*BufferSwapCompleteEvent)
	if !ok {
		t.Errorf("expected BufferSwapCompleteEvent, got %T", ev)
		t.FailNow()
	}
	in.Extension = "DRI2"
	if *out != *in {
		t.Errorf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func Test_requests_fail_without_the_extension(t *testing.T) {
	server, stream := clienttest.NewServer(order, nil)
	defer server.Close()
	conn := client.NewConn(&client.ConnParams{ByteOrder: order}, stream, createLogger())
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	if _, err := GetMSC(ctx, conn, xproto.Drawable(1)); !errors.Is(err, registry.ErrUnsupportedExtension) {
		t.Error("expected ErrUnsupportedExtension, got: ", err)
	}
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
