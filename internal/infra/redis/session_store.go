package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - Session drivers own timers and locks, so they live in a local map.
//   - Redis marks session liveness (quiz:session:{id}) so other instances can
//     tell which node hosts a session.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	node     string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// NewSessionStore tracks sessions hosted by node. Markers expire after ttl unless refreshed.
func NewSessionStore(client *redis.Client, ttl time.Duration, node string) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		node:     node,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Add(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), s.node, s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Refresh extends the liveness markers of every local session.
func (s *SessionStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Set(ctx, s.key(id), s.node, s.ttl)
		}
		return nil
	})
	return err
}

// Host returns the node hosting a session, or "" when no live marker exists.
func (s *SessionStore) Host(ctx context.Context, sessionID string) (string, error) {
	node, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return node, err
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
