// Package bridge relays X11 byte streams between websocket clients and a
// display socket. Each websocket carries one session; the bridge attaches
// the session, dials the display and copies bytes both ways until either
// side goes away.
package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fr3shw3b/xwire/pkg/sessions"
	"github.com/fr3shw3b/xwire/pkg/transport"
	"github.com/fr3shw3b/xwire/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	closeDeadline = time.Second
	readChunk     = 64 * 1024
)

// DialFunc opens the stream to a display.
type DialFunc func(ctx context.Context, display string) (io.ReadWriteCloser, error)

type BridgeParams struct {
	// Display is dialled for every session unless the client names its own.
	Display string
	// AllowDisplayOverride lets clients pick a display with the "display"
	// query parameter.
	AllowDisplayOverride bool
	MaxDialAttempts      int
	// Dial defaults to transport.Dial.
	Dial    DialFunc
	Metrics *Metrics
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The bridge is meant to sit behind something that authenticates.
		return true
	},
}

type bridgeImpl struct {
	params *BridgeParams
	store  sessions.SessionStore
	logger *logrus.Logger
}

func NewDefaultBridge(params *BridgeParams, store sessions.SessionStore, logger *logrus.Logger) http.Handler {
	if params.Dial == nil {
		params.Dial = func(ctx context.Context, display string) (io.ReadWriteCloser, error) {
			return transport.Dial(ctx, display, params.MaxDialAttempts, logger)
		}
	}
	return &bridgeImpl{
		params,
		store,
		logger,
	}
}

func (b *bridgeImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websockets upgrade error: ", err)
		return
	}

	defer conn.Close()

	query := r.URL.Query()
	sessionID := query.Get("sessionId")
	if sessionID == "" {
		b.params.Metrics.session("missing_session_id")
		closeWith(conn, utils.CloseCodeMissingSessionID, "missing session id")
		return
	}

	display := b.params.Display
	if requested := query.Get("display"); requested != "" && b.params.AllowDisplayOverride {
		display = requested
	}
	if _, err := transport.ParseDisplay(display); err != nil {
		b.logger.Error("session ", sessionID, ": ", err)
		b.params.Metrics.session("invalid_display")
		closeWith(conn, utils.CloseCodeInvalidDisplay, "invalid display name")
		return
	}

	_, err = b.store.Attach(sessionID, display)
	if err != nil {
		b.logger.Error("failed to attach session: ", err)
		switch {
		case errors.Is(err, sessions.ErrSessionExpired):
			b.params.Metrics.session("expired")
			closeWith(conn, utils.CloseCodeExpiredSession, "session has expired")
		case errors.Is(err, sessions.ErrSessionInUse):
			b.params.Metrics.session("in_use")
			closeWith(conn, utils.CloseCodeSessionInUse, "session is attached elsewhere")
		default:
			b.params.Metrics.session("error")
			closeWith(conn, websocket.CloseInternalServerErr, "could not attach session")
		}
		return
	}
	defer func() {
		if err := b.store.Detach(sessionID); err != nil {
			b.logger.Error("failed to detach session: ", err)
		}
	}()

	stream, err := b.params.Dial(r.Context(), display)
	if err != nil {
		b.logger.Error("session ", sessionID, ": ", err)
		b.params.Metrics.session("display_unavailable")
		closeWith(conn, utils.CloseCodeDisplayUnavailable, "display unavailable")
		return
	}

	b.params.Metrics.session("relayed")
	b.params.Metrics.activeDelta(1)
	defer b.params.Metrics.activeDelta(-1)
	b.logger.Debug("session ", sessionID, " relaying to display ", display)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pumpFromDisplay(conn, stream, sessionID)
	}()

	b.pumpToDisplay(conn, stream, sessionID)
	// Unblocks pumpFromDisplay if the client left first.
	stream.Close()
	wg.Wait()
}

// pumpToDisplay copies binary messages from the client to the display until
// either side fails.
func (b *bridgeImpl) pumpToDisplay(conn *websocket.Conn, stream io.Writer, sessionID string) {
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				b.logger.Debug("session ", sessionID, " read error: ", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if _, err := stream.Write(message); err != nil {
			b.logger.Error("session ", sessionID, " display write error: ", err)
			closeWith(conn, utils.CloseCodeDisplayUnavailable, "display write failed")
			return
		}
		b.params.Metrics.relayed("to_display", len(message))
		if err := b.store.Record(sessionID, len(message), 0); err != nil {
			b.logger.Error("failed to record relayed bytes: ", err)
		}
	}
}

// pumpFromDisplay sends whatever the display writes as binary messages. When
// the display hangs up the client gets a normal closure.
func (b *bridgeImpl) pumpFromDisplay(conn *websocket.Conn, stream io.Reader, sessionID string) {
	buf := make([]byte, readChunk)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if writeErr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				b.logger.Debug("session ", sessionID, " write error: ", writeErr)
				return
			}
			b.params.Metrics.relayed("from_display", n)
			if recordErr := b.store.Record(sessionID, 0, n); recordErr != nil {
				b.logger.Error("failed to record relayed bytes: ", recordErr)
			}
		}
		if err != nil {
			b.logger.Debug("session ", sessionID, " display closed: ", err)
			closeWith(conn, websocket.CloseNormalClosure, "display closed")
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(closeDeadline),
	)
	conn.Close()
}
