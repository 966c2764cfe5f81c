package handler

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const authSessionTTL = 24 * time.Hour

type authSession struct {
	user      string
	expiresAt time.Time
}

// sessionStore keeps docent login tokens in memory. Tokens do not survive a
// restart.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]authSession
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]authSession), now: time.Now}
}

// create returns a new token for user.
func (s *sessionStore) create(user string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.sessions[token] = authSession{user: user, expiresAt: s.now().Add(authSessionTTL)}
	return token, nil
}

// get returns the user for token, or false if unknown or expired.
func (s *sessionStore) get(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return "", false
	}
	return sess.user, true
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *sessionStore) cleanupLocked() {
	now := s.now()
	for token, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, token)
		}
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
