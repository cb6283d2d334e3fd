package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quicktrivia/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions (and their reveal timers) live in this process; Redis marks which
// players have a live session so other instances and operators can see them.
// Rooms, not sessions, are what instances share.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(playerID string, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[playerID]; ok {
		s.touch(playerID)
		return session
	}
	session := create()
	s.sessions[playerID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(playerID), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(playerID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[playerID]
	if ok {
		s.touch(playerID)
	}
	return session, ok
}

func (s *SessionStore) DeleteIf(playerID string, evict func(*app.Session) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[playerID]
	if !ok || !evict(session) {
		return false
	}
	s.deleteLocked(playerID, session)
	return true
}

func (s *SessionStore) Sweep(evict func(*app.Session) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for playerID, session := range s.sessions {
		if evict(session) {
			s.deleteLocked(playerID, session)
			n++
		}
	}
	return n
}

func (s *SessionStore) deleteLocked(playerID string, session *app.Session) {
	session.Reset()
	delete(s.sessions, playerID)
	_ = s.client.Del(context.Background(), s.key(playerID)).Err()
}

// LiveSessions counts the liveness markers across all instances.
func (s *SessionStore) LiveSessions(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "games:session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *SessionStore) touch(playerID string) {
	if s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(playerID), s.ttl).Err()
	}
}

func (s *SessionStore) key(playerID string) string {
	return "games:session:" + playerID
}
