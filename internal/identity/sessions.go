package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie carries the session token in the cookie scheme.
const SessionCookie = "wallet_session"

type sessionEntry struct {
	userID    string
	expiresAt time.Time
}

// Sessions maps opaque tokens to users. The same token serves as the session
// cookie and as the bearer token.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSessions creates a store whose sessions live for ttl.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Sessions{entries: make(map[string]sessionEntry), ttl: ttl, now: time.Now}
}

// Create starts a session for userID and returns its token.
func (s *Sessions) Create(userID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.entries[token] = sessionEntry{userID: userID, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token
}

// Lookup returns the user of a live session.
func (s *Sessions) Lookup(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return "", false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, token)
		return "", false
	}
	return entry.userID, true
}

// Revoke ends the session.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}
