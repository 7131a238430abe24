package booking

import (
	"sync"
	"time"

	"peran/internal/metrics"
)

// Field names a free-text form field.
type Field string

const (
	FieldNone            Field = ""
	FieldDate            Field = "date"
	FieldTime            Field = "time"
	FieldService         Field = "serviceId"
	FieldProvider        Field = "providerId"
	FieldName            Field = "name"
	FieldEmail           Field = "email"
	FieldPhone           Field = "phone"
	FieldGuests          Field = "guests"
	FieldNotes           Field = "notes"
	FieldSpecialRequests Field = "specialRequests"
)

// Session is one chat's booking form plus the field the chat is typing into.
type Session struct {
	ChatID     int64
	Controller *Controller
	StartedAt  time.Time

	mu        sync.Mutex
	awaiting  Field
	updatedAt time.Time
}

// Await records which field the next text message fills.
func (s *Session) Await(f Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting = f
	s.updatedAt = time.Now()
}

// Awaiting returns the field the next text message fills.
func (s *Session) Awaiting() Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
}

// IsExpired checks if session has expired.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.updatedAt) > timeout
}

// SessionStore manages booking sessions.
type SessionStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	factory  func() *Controller
}

// NewSessionStore creates a store that builds controllers with factory.
func NewSessionStore(timeout time.Duration, factory func() *Controller) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
		factory:  factory,
	}
}

// Get returns a session for chat.
func (ss *SessionStore) Get(chatID int64) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.sessions[chatID]
}

// GetOrCreate returns the live session or creates a fresh one. The bool is
// true when the session is new and its controller still needs Load.
func (ss *SessionStore) GetOrCreate(chatID int64) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	session, ok := ss.sessions[chatID]
	if ok && !session.IsExpired(ss.timeout) {
		session.Touch()
		return session, false
	}

	session = ss.newSession(chatID)
	ss.sessions[chatID] = session
	metrics.SetActiveSessions(len(ss.sessions))
	return session, true
}

// Reset replaces the chat's session with a fresh one.
func (ss *SessionStore) Reset(chatID int64) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	session := ss.newSession(chatID)
	ss.sessions[chatID] = session
	metrics.SetActiveSessions(len(ss.sessions))
	return session
}

// Delete removes a session.
func (ss *SessionStore) Delete(chatID int64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, chatID)
	metrics.SetActiveSessions(len(ss.sessions))
}

// Len returns the number of held sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Each calls fn for every live session.
func (ss *SessionStore) Each(fn func(*Session)) {
	ss.mu.RLock()
	list := make([]*Session, 0, len(ss.sessions))
	for _, s := range ss.sessions {
		list = append(list, s)
	}
	ss.mu.RUnlock()

	for _, s := range list {
		fn(s)
	}
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for chatID, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			delete(ss.sessions, chatID)
			removed++
		}
	}
	metrics.SetActiveSessions(len(ss.sessions))
	return removed
}

func (ss *SessionStore) newSession(chatID int64) *Session {
	now := time.Now()
	return &Session{
		ChatID:     chatID,
		Controller: ss.factory(),
		StartedAt:  now,
		updatedAt:  now,
	}
}
