package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type InMemoryStoreParams struct {
	// ExpireAfterIdleTime is in seconds.
	ExpireAfterIdleTime int
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewInMemoryStore(params *InMemoryStoreParams, logger *logrus.Logger) SessionStore {
	if params.Now == nil {
		params.Now = time.Now
	}
	return &inMemoryStore{
		params:   params,
		sessions: map[string]*internalSessionState{},
		logger:   logger,
	}
}

type inMemoryStore struct {
	mu       sync.Mutex
	params   *InMemoryStoreParams
	sessions map[string]*internalSessionState
	logger   *logrus.Logger
}

type internalSessionState struct {
	sessionID    string
	display      string
	lastAccessed int64
	// Expired sessions are kept as a soft delete so a client cannot revive
	// a session id after the expiry time has passed.
	// TODO: sweep expired sessions once they outnumber live ones.
	expired          bool
	attached         bool
	connections      int
	bytesToDisplay   uint64
	bytesFromDisplay uint64
}

func (s *inMemoryStore) Attach(sessionID string, display string) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.loadExisting(sessionID)
	if err != nil {
		return SessionState{}, err
	}

	if session == nil {
		session = &internalSessionState{
			sessionID:    sessionID,
			display:      display,
			lastAccessed: s.params.Now().Unix(),
		}
		s.sessions[sessionID] = session
	} else if session.attached {
		return SessionState{}, fmt.Errorf("%w: %s", ErrSessionInUse, sessionID)
	}
	session.attached = true
	session.connections += 1
	s.logger.Debug("session ", sessionID, " attached, connections: ", session.connections)

	return session.state(), nil
}

func (s *inMemoryStore) Get(sessionID string) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.loadExisting(sessionID)
	if err != nil {
		return SessionState{}, err
	}
	if session == nil {
		return SessionState{}, fmt.Errorf("%w: %s", ErrNoSession, sessionID)
	}
	return session.state(), nil
}

func (s *inMemoryStore) Record(sessionID string, toDisplay, fromDisplay int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.loadExisting(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, sessionID)
	}
	session.bytesToDisplay += uint64(toDisplay)
	session.bytesFromDisplay += uint64(fromDisplay)
	return nil
}

func (s *inMemoryStore) Detach(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessions[sessionID]
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, sessionID)
	}
	session.attached = false
	session.lastAccessed = s.params.Now().Unix()
	return nil
}

// loadExisting returns nil without an error for a session that was never
// created.
func (s *inMemoryStore) loadExisting(sessionID string) (*internalSessionState, error) {
	session := s.sessions[sessionID]
	if session == nil {
		return nil, nil
	}
	if s.checkExpiredAndUpdateIfNeeded(session) {
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
	}
	return session, nil
}

func (s *inMemoryStore) checkExpiredAndUpdateIfNeeded(session *internalSessionState) bool {
	if session.expired {
		return true
	}

	now := s.params.Now().Unix()
	// An attached session is in use however long it has been quiet.
	if !session.attached && session.lastAccessed+int64(s.params.ExpireAfterIdleTime) < now {
		s.logger.Debug("Setting session to expired ", session.sessionID, " ", session.lastAccessed, " ", now)
		session.expired = true
		return true
	}
	session.lastAccessed = now
	return false
}

func (session *internalSessionState) state() SessionState {
	return SessionState{
		Display:          session.display,
		Attached:         session.attached,
		Connections:      session.connections,
		BytesToDisplay:   session.bytesToDisplay,
		BytesFromDisplay: session.bytesFromDisplay,
	}
}
