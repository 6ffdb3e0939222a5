package sessions

import "errors"

var (
	// ErrSessionExpired is returned for a session id whose session sat idle
	// past the expiry time. Expired ids are never reused.
	ErrSessionExpired = errors.New("sessions: session has expired")
	// ErrSessionInUse is returned when a second connection claims a session
	// that is still attached.
	ErrSessionInUse = errors.New("sessions: session is attached to another connection")
	ErrNoSession    = errors.New("sessions: no such session")
)

type SessionStore interface {
	// Attach creates the session for sessionID, or reattaches to it, and
	// returns a read-only copy of its state.
	Attach(sessionID string, display string) (SessionState, error)
	// Should produce a read-only copy of session state.
	Get(sessionID string) (SessionState, error)
	// Record adds the bytes relayed in each direction since the last call.
	Record(sessionID string, toDisplay, fromDisplay int) error
	// Detach marks the session free for the next connection. Its idle time
	// starts counting from here.
	Detach(sessionID string) error
}

type SessionState struct {
	Display          string
	Attached         bool
	Connections      int
	BytesToDisplay   uint64
	BytesFromDisplay uint64
}
