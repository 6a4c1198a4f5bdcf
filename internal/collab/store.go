package collab

import (
	"sync"

	"ideasync/internal/models"
)

// Store is the in-memory table of sessions known to this process plus the
// user -> sessions index. The mutex only keeps the maps memory safe; callers
// get no cross-call transaction, so overlapping writers resolve as last
// write observed.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byUser   map[string][]string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		byUser:   make(map[string][]string),
	}
}

// Put inserts or replaces a session.
func (s *Store) Put(session *models.Session) {
	if session == nil {
		return
	}
	s.mu.Lock()
	s.sessions[session.ID] = session.Clone()
	s.mu.Unlock()
}

// Get returns a copy of the session.
func (s *Store) Get(sessionID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return se.Clone(), true
}

// Update runs fn against the stored session under the write lock. fn sees
// the live record; the returned copy reflects the state after fn.
func (s *Store) Update(sessionID string, fn func(*models.Session) error) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := fn(se); err != nil {
		return nil, err
	}
	return se.Clone(), nil
}

// Index records that userID created or joined sessionID. Repeated calls keep
// the original position.
func (s *Store) Index(userID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byUser[userID] {
		if id == sessionID {
			return
		}
	}
	s.byUser[userID] = append(s.byUser[userID], sessionID)
}

// SessionsFor returns copies of the sessions indexed under userID, in the
// order they were added.
func (s *Store) SessionsFor(userID string) []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		if se, ok := s.sessions[id]; ok {
			out = append(out, se.Clone())
		}
	}
	return out
}

// Import stores a snapshot learned from elsewhere and indexes it under each
// of its participants. A locally known session is left untouched.
func (s *Store) Import(session *models.Session) bool {
	if session == nil || session.ID == "" {
		return false
	}
	s.mu.Lock()
	if _, ok := s.sessions[session.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.sessions[session.ID] = session.Clone()
	s.mu.Unlock()
	for _, p := range session.Participants {
		s.Index(p.UserID, session.ID)
	}
	return true
}
