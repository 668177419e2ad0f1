package session

import (
	"sync"
	"time"

	"foodrun/internal/domain"
)

// Store keeps client sessions by name and drops them once they expire.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session), now: time.Now}
}

func (s *Store) Put(name string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[name] = sess
}

// Get returns ErrAuthExpired when the session is missing or past its expiry.
func (s *Store) Get(name string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAuthExpired
	}
	if sess.Expired(s.now()) {
		s.Delete(name)
		return nil, domain.ErrAuthExpired
	}
	return sess, nil
}

func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, name)
}

// Source binds a name so the store can hand out tokens for it.
func (s *Store) Source(name string) TokenSource {
	return storeSource{store: s, name: name}
}

type TokenSource interface {
	Token() (string, error)
}

type storeSource struct {
	store *Store
	name  string
}

func (ts storeSource) Token() (string, error) {
	sess, err := ts.store.Get(ts.name)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Static is a TokenSource for a fixed session.
func Static(sess *Session) TokenSource { return staticSource{sess} }

type staticSource struct{ sess *Session }

func (ts staticSource) Token() (string, error) {
	if ts.sess == nil || ts.sess.Expired(time.Now()) {
		return "", domain.ErrAuthExpired
	}
	return ts.sess.Token, nil
}
