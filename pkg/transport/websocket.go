package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fr3shw3b/xwire/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// closeDeadline bounds the close handshake.
const closeDeadline = time.Second

// ErrBridgeRefused is returned by reads once the bridge closed the stream
// because of something the client asked for.
var ErrBridgeRefused = errors.New("transport: bridge refused the session")

// WebSocketStream carries a byte stream over binary websocket messages.
// Message boundaries mean nothing to the reader; text messages are
// skipped.
type WebSocketStream struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

func (s *WebSocketStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for {
		if s.reader == nil {
			kind, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return 0, io.EOF
				}
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) && utils.IsKnownClientErrorCode(closeErr.Code) {
					return 0, fmt.Errorf(
						"%w: code[%s(%d)] reason: %s",
						ErrBridgeRefused, utils.CloseCodeName(closeErr.Code), closeErr.Code, closeErr.Text,
					)
				}
				return 0, err
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (s *WebSocketStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure and closes the underlying connection.
func (s *WebSocketStream) Close() error {
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeDeadline),
	)
	return s.conn.Close()
}

// DialWebSocket connects to a bridge at url, retrying with exponential
// backoff up to maxRetries times after the first attempt.
func DialWebSocket(ctx context.Context, url string, maxRetries int, logger *logrus.Logger) (*WebSocketStream, error) {
	var conn *websocket.Conn
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				logger.Debug("dial ", url, " attempt ", attempt, ": ", err, " (status ", resp.StatusCode, ")")
			} else {
				logger.Debug("dial ", url, " attempt ", attempt, ": ", err)
			}
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(),
		uint64(maxRetries),
	), ctx))
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}
	return NewWebSocketStream(conn), nil
}
