package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// SessionStore is the in-memory, concurrency-safe registry of sessions.
// It lives as long as the process; nothing is persisted.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

// Create registers a new idle session and returns its id
func (s *SessionStore) Create(url string, media *domain.MediaDescriptor) string {
	session := domain.NewSession(url, media)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session.ID
}

// Get returns a snapshot of the session
func (s *SessionStore) Get(id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return session.Clone(), nil
}

// Update applies fn to the session under the store lock. When fn returns
// an error the session is left unchanged.
func (s *SessionStore) Update(id string, fn func(*domain.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	working := session.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	s.sessions[id] = &working
	return nil
}

// Delete removes the session; unknown ids are ignored
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of tracked sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns snapshots of all sessions, oldest first
func (s *SessionStore) List() []domain.Session {
	s.mu.RLock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ClaimsFile reports whether any session still owns the given path
func (s *SessionStore) ClaimsFile(path string) bool {
	if path == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.FilePath == path && session.Status == domain.StatusCompleted {
			return true
		}
	}
	return false
}
