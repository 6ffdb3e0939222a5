package xv

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/fr3shw3b/xwire/pkg/client"
	"github.com/fr3shw3b/xwire/pkg/client/clienttest"
	"github.com/fr3shw3b/xwire/pkg/ext/bigreq"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/sirupsen/logrus"
)

const (
	testMajor      = 151
	testFirstEvent = 80
	testFirstError = 150
	badPort        = 0xdead
	bigReqMajor    = 133
)

var order = binary.LittleEndian

var testEncodings = []EncodingInfo{
	{Encoding: 0x50, Width: 720, Height: 576, Rate: Rational{Numerator: 1, Denominator: 25}, Name: "pal-x"},
	{Encoding: 0x51, Width: 720, Height: 480, Rate: Rational{Numerator: 1001, Denominator: 30000}, Name: "ntsc"},
}

var testImageFormats = []ImageFormatInfo{
	{ID: 0x32595559, Type: ImageFormatInfoTypeYUV, BPP: 16, NumPlanes: 1, Format: ImageFormatInfoFormatPacked,
		GUID: [16]byte{'Y', 'U', 'Y', '2', 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71},
		YSampleBits: 8, USampleBits: 8, VSampleBits: 8, VHorzYPeriod: 1, VHorzUPeriod: 2, VHorzVPeriod: 2,
		VVertYPeriod: 1, VVertUPeriod: 1, VVertVPeriod: 1, VCompOrder: [32]byte{'Y', 'U', 'Y', 'V'}},
	{ID: 0x03, Type: ImageFormatInfoTypeRGB, ByteOrder: 0, BPP: 32, NumPlanes: 1, Depth: 24, Format: ImageFormatInfoFormatPacked,
		RedMask: 0xff0000, GreenMask: 0xff00, BlueMask: 0xff, ScanlineOrder: ScanlineOrderBottomToTop},
}

var testAdaptors = []AdaptorInfo{
	{BaseID: 0x40, NumPorts: 16, Type: TypeInputMask | TypeImageMask, Name: "Textured Video", Formats: []Format{{Visual: 0x21, Depth: 24}, {Visual: 0x22, Depth: 32}}},
}

func encodeList[T wire.Marshaler](items []T) []byte {
	e := wire.NewEncoder(order, 64)
	wire.EncodeList(e, items)
	return e.Bytes()
}

func xvHandler(server **clienttest.Server) clienttest.Handler {
	return func(r *clienttest.Responder, req clienttest.Request) {
		if req.Major == bigReqMajor {
			body := make([]byte, 24)
			order.PutUint32(body[0:4], 0x3fffff)
			r.Reply(req.Seq, 0, body)
			return
		}
		if req.Major != testMajor {
			(*server).DefaultHandler(r, req)
			return
		}
		port := uint32(0)
		if len(req.Body) >= 4 {
			port = order.Uint32(req.Body[0:4])
		}
		if port == badPort {
			r.Error(testFirstError+BadPort, req.Seq, badPort, testMajor, uint16(req.Data))
			return
		}
		switch req.Data {
		case OpQueryExtension:
			body := make([]byte, 24)
			order.PutUint16(body[0:2], 2)
			order.PutUint16(body[2:4], 2)
			r.Reply(req.Seq, 0, body)
		case OpQueryAdaptors:
			body := make([]byte, 24)
			order.PutUint16(body[0:2], uint16(len(testAdaptors)))
			r.Reply(req.Seq, 0, append(body, encodeList(testAdaptors)...))
		case OpQueryEncodings:
			body := make([]byte, 24)
			order.PutUint16(body[0:2], uint16(len(testEncodings)))
			r.Reply(req.Seq, 0, append(body, encodeList(testEncodings)...))
		case OpGrabPort:
			r.Reply(req.Seq, GrabPortStatusAlreadyGrabbed, nil)
		case OpQueryBestSize:
			body := make([]byte, 24)
			copy(body[0:4], req.Body[8:12])
			r.Reply(req.Seq, 0, body)
		case OpQueryPortAttributes:
			attrs := []AttributeInfo{{Flags: AttributeFlagGettable | AttributeFlagSettable, Min: -1000, Max: 1000, Name: "XV_BRIGHTNESS"}}
			body := make([]byte, 24)
			order.PutUint32(body[0:4], 1)
			order.PutUint32(body[4:8], 14)
			r.Reply(req.Seq, 0, append(body, encodeList(attrs)...))
		case OpListImageFormats:
			body := make([]byte, 24)
			order.PutUint32(body[0:4], uint32(len(testImageFormats)))
			r.Reply(req.Seq, 0, append(body, encodeList(testImageFormats)...))
		case OpQueryImageAttributes:
			// Planar 4:2:0 layout for the requested size, width rounded up
			// to even.
			w := (uint32(order.Uint16(req.Body[8:10])) + 1) &^ 1
			h := uint32(order.Uint16(req.Body[10:12]))
			body := make([]byte, 24, 48)
			order.PutUint32(body[0:4], 3)
			order.PutUint32(body[4:8], w*h*3/2)
			order.PutUint16(body[8:10], uint16(w))
			order.PutUint16(body[10:12], uint16(h))
			for _, v := range []uint32{w, w / 2, w / 2, 0, w * h, w*h + w*h/4} {
				body = order.AppendUint32(body, v)
			}
			r.Reply(req.Seq, 0, body)
		case OpSetPortAttribute:
			r.Event(&PortNotifyEvent{
				EventHeader: xproto.EventHeader{Code: testFirstEvent + PortNotify, Sequence: req.Seq},
				Time:        1234,
				Port:        xproto.Port(port),
				Attribute:   xproto.Atom(order.Uint32(req.Body[4:8])),
				Value:       int32(order.Uint32(req.Body[8:12])),
			})
		}
	}
}

func createTestConn() (*client.Conn, *clienttest.Server) {
	var server *clienttest.Server
	server, stream := clienttest.NewServer(order, xvHandler(&server))
	server.Extensions["XVideo"] = xproto.QueryExtensionReply{
		Present:     true,
		MajorOpcode: testMajor,
		FirstEvent:  testFirstEvent,
		FirstError:  testFirstError,
	}
	server.Extensions["BIG-REQUESTS"] = xproto.QueryExtensionReply{Present: true, MajorOpcode: bigReqMajor}
	return client.NewConn(&client.ConnParams{ByteOrder: order}, stream, createLogger()), server
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func Test_query_encodings_reads_variable_length_entries(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryEncodings(ctx, conn, xproto.Port(0x40))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if len(reply.Info) != len(testEncodings) {
		t.Error("expected 2 encodings, got ", len(reply.Info))
		t.FailNow()
	}
	for i, info := range reply.Info {
		if info != testEncodings[i] {
			t.Errorf("encoding %d: got %+v want %+v", i, info, testEncodings[i])
		}
	}
}

func Test_query_adaptors_reads_nested_format_lists(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryAdaptors(ctx, conn, xproto.Window(0x100))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if len(reply.Info) != 1 {
		t.Error("expected one adaptor, got ", len(reply.Info))
		t.FailNow()
	}
	got := reply.Info[0]
	if got.Name != "Textured Video" || got.BaseID != 0x40 || got.NumPorts != 16 || len(got.Formats) != 2 || got.Formats[1].Depth != 32 {
		t.Errorf("unexpected adaptor %+v", got)
	}
}

func Test_query_port_attributes_strips_the_terminating_nul(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryPortAttributes(ctx, conn, xproto.Port(0x40))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if len(reply.Attributes) != 1 || reply.Attributes[0].Name != "XV_BRIGHTNESS" || reply.Attributes[0].Min != -1000 {
		t.Errorf("unexpected attributes %+v", reply.Attributes)
	}
}

func Test_grab_port_status_comes_from_the_data_byte(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := GrabPort(ctx, conn, xproto.Port(0x40), xproto.CurrentTime)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.Result != GrabPortStatusAlreadyGrabbed {
		t.Error("expected already grabbed, got ", reply.Result)
	}
}

func Test_query_best_size_encodes_sizes_in_order(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryBestSize(ctx, conn, xproto.Port(0x40), BestSizeParams{
		VideoWidth: 720, VideoHeight: 576, DrawableWidth: 1280, DrawableHeight: 1024, Motion: true,
	})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.ActualWidth != 1280 || reply.ActualHeight != 1024 {
		t.Errorf("unexpected size %+v", reply)
	}
	requests := server.Requests()
	body := requests[len(requests)-1].Body
	if len(body) != 16 || body[12] != 1 {
		t.Errorf("unexpected request body % x", body)
	}
}

func Test_extension_error_reaches_the_reply_cookie(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := GetPortAttribute(ctx, conn, xproto.Port(badPort), xproto.Atom(1))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	_, err = cookie.Reply(ctx)
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Error("expected a Port error, got: ", err)
		t.FailNow()
	}
	if !errors.Is(err, xproto.ErrProtocol) {
		t.Error("expected the error to match ErrProtocol")
	}
	if portErr.Extension != "XVideo" || portErr.Code != testFirstError+BadPort || portErr.BadValue != badPort {
		t.Errorf("unexpected error %+v", portErr.Details())
	}
}

func Test_unchecked_extension_error_is_delivered_as_an_event(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := StopVideo(ctx, conn, xproto.Port(badPort), xproto.Drawable(0x200001))
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
		t.Errorf("expected AsyncError, got %T", ev)
		t.FailNow()
	}
	if _, ok := async.Err.(*PortError); !ok || async.Seq != cookie.Sequence() {
		t.Errorf("unexpected async error %T for seq %d", async.Err, async.Seq)
	}
}

func Test_port_notify_event_is_typed(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	check, err := SetPortAttributeChecked(ctx, conn, xproto.Port(0x41), xproto.Atom(0x99), -20)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := check.Check(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}
	ev, err := conn.WaitForEventAfter(ctx, check.Sequence())
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	notify, ok := ev.(*PortNotifyEvent)
	if !ok {
		t.Errorf("expected PortNotifyEvent, got %T", ev)
		t.FailNow()
	}
	if notify.Port != 0x41 || notify.Attribute != 0x99 || notify.Value != -20 || notify.Extension != "XVideo" {
		t.Errorf("unexpected event %+v", notify)
	}
}

func Test_video_notify_round_trips_with_the_reason_byte(t *testing.T) {
	in := &VideoNotifyEvent{
		EventHeader: xproto.EventHeader{Code: testFirstEvent + VideoNotify, Synthetic: true, Sequence: 3},
		Reason:      VideoNotifyReasonPreempted,
		Time:        77,
		Drawable:    0x200001,
		Port:        0x40,
	}
	msg := wire.Encode(order, in)
	if len(msg) != 32 || msg[1] != VideoNotifyReasonPreempted || msg[0]&wire.SyntheticBit == 0 {
		t.Errorf("unexpected encoding % x", msg)
		t.FailNow()
	}
	ev, err := decodeVideoNotify(order, msg)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if out := ev.(*VideoNotifyEvent); *out != *in {
		t.Errorf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func Test_list_image_formats_reads_fixed_size_records(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := ListImageFormats(ctx, conn, xproto.Port(0x40))
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if len(reply.Formats) != len(testImageFormats) {
		t.Error("expected 2 formats, got ", len(reply.Formats))
		t.FailNow()
	}
	for i, f := range reply.Formats {
		if f != testImageFormats[i] {
			t.Errorf("format %d: got %+v want %+v", i, f, testImageFormats[i])
		}
	}
	if n := len(encodeList(testImageFormats[:1])); n != ImageFormatInfoSize {
		t.Error("expected a 128 byte record, got ", n)
	}
}

func Test_query_image_attributes_reads_one_pitch_and_offset_per_plane(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	cookie, err := QueryImageAttributes(ctx, conn, xproto.Port(0x40), 0x32315659, 175, 100)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	reply, err := cookie.Reply(ctx)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if reply.Width != 176 || reply.Height != 100 || reply.DataSize != 176*100*3/2 {
		t.Errorf("unexpected size %+v", reply)
	}
	if len(reply.Pitches) != 3 || len(reply.Offsets) != 3 {
		t.Errorf("expected 3 planes, got %d pitches and %d offsets", len(reply.Pitches), len(reply.Offsets))
		t.FailNow()
	}
	if reply.Pitches[1] != 88 || reply.Offsets[1] != 176*100 || reply.Offsets[2] != 176*100+176*100/4 {
		t.Errorf("unexpected planes %+v", reply)
	}
	requests := server.Requests()
	body := requests[len(requests)-1].Body
	if len(body) != 12 || order.Uint32(body[4:8]) != 0x32315659 {
		t.Errorf("unexpected request body % x", body)
	}
}

func Test_put_video_encodes_both_regions_after_the_gc(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	check, err := PutVideoChecked(ctx, conn, xproto.Port(0x40), xproto.Drawable(0x200001), xproto.GContext(0x200002),
		Region{X: 0, Y: 0, Width: 720, Height: 576}, Region{X: -10, Y: 20, Width: 360, Height: 288})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := check.Check(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}
	var body []byte
	for _, req := range server.Requests() {
		if req.Major == testMajor && req.Data == OpPutVideo {
			body = req.Body
		}
	}
	if len(body) != 28 {
		t.Errorf("unexpected request body % x", body)
		t.FailNow()
	}
	if order.Uint32(body[8:12]) != 0x200002 || order.Uint16(body[16:18]) != 720 || int16(order.Uint16(body[20:22])) != -10 || order.Uint16(body[26:28]) != 288 {
		t.Errorf("unexpected request body % x", body)
	}
}

func Test_shm_put_image_sends_the_segment_and_event_flag(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	check, err := ShmPutImageChecked(ctx, conn, xproto.Port(0x40), xproto.Drawable(0x200001), xproto.GContext(0x200002), ShmImage{
		ID: 0x32595559, Seg: xproto.ShmSeg(0x300001), Offset: 4096,
		Src: Region{Width: 640, Height: 480}, Dst: Region{Width: 1280, Height: 960},
		Width: 640, Height: 480, SendEvent: true,
	})
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := check.Check(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}
	var body []byte
	for _, req := range server.Requests() {
		if req.Major == testMajor && req.Data == OpShmPutImage {
			body = req.Body
		}
	}
	if len(body) != 48 {
		t.Errorf("unexpected request body % x", body)
		t.FailNow()
	}
	if order.Uint32(body[12:16]) != 0x300001 || order.Uint32(body[20:24]) != 4096 || body[44] != 1 {
		t.Errorf("unexpected request body % x", body)
	}
}

func Test_put_image_needs_big_requests_for_large_frames(t *testing.T) {
	conn, server := createTestConn()
	defer server.Close()
	defer conn.Close()
	ctx, cancel := testContext()
	defer cancel()

	img := Image{
		ID:     0x32595559,
		Src:    Region{Width: 640, Height: 480},
		Dst:    Region{Width: 640, Height: 480},
		Width:  640,
		Height: 480,
		Data:   make([]byte, 640*480*2+1),
	}
	img.Data[len(img.Data)-1] = 0x7f
	if _, err := PutImage(ctx, conn, xproto.Port(0x40), xproto.Drawable(0x200001), xproto.GContext(0x200002), img); !errors.Is(err, wire.ErrRequestTooLarge) {
		t.Error("expected ErrRequestTooLarge, got: ", err)
		t.FailNow()
	}

	if _, err := bigreq.Enable(ctx, conn); err != nil {
		t.Error(err)
		t.FailNow()
	}
	check, err := PutImageChecked(ctx, conn, xproto.Port(0x40), xproto.Drawable(0x200001), xproto.GContext(0x200002), img)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if err := check.Check(ctx); err != nil {
		t.Error(err)
		t.FailNow()
	}
	var body []byte
	for _, req := range server.Requests() {
		if req.Major == testMajor && req.Data == OpPutImage {
			body = req.Body
		}
	}
	// 36 bytes of fixed fields, then the data padded to a multiple of 4.
	want := 36 + len(img.Data) + 3
	if len(body) != want {
		t.Errorf("expected a %d byte body, got %d", want, len(body))
		t.FailNow()
	}
	if order.Uint16(body[32:34]) != 640 || body[36+len(img.Data)-1] != 0x7f {
		t.Error("unexpected image header or data")
	}
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
