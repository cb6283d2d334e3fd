package memory

import (
	"sync"

	"quicktrivia/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(playerID string, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[playerID]; ok {
		return session
	}
	session := create()
	s.sessions[playerID] = session
	return session
}

func (s *SessionStore) Get(playerID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[playerID]
	return session, ok
}

func (s *SessionStore) DeleteIf(playerID string, evict func(*app.Session) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[playerID]
	if !ok || !evict(session) {
		return false
	}
	session.Reset()
	delete(s.sessions, playerID)
	return true
}

func (s *SessionStore) Sweep(evict func(*app.Session) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for playerID, session := range s.sessions {
		if !evict(session) {
			continue
		}
		session.Reset()
		delete(s.sessions, playerID)
		n++
	}
	return n
}
