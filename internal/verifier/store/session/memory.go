package session

import (
	"context"
	"sync"

	"fides/internal/verifier/models"
)

// MemoryStore keeps sessions in a map. Suitable for single-node
// deployments and tests; sessions do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Session
	byState map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*models.Session),
		byState: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[session.ID]; exists {
		return errAlreadyExists()
	}
	clone := *session
	s.byID[session.ID] = &clone
	s.byState[session.State] = session.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[id]
	if !ok {
		return nil, errNotFound()
	}
	clone := *session
	return &clone, nil
}

func (s *MemoryStore) GetByState(_ context.Context, state string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byState[state]
	if !ok {
		return nil, errNotFound()
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[session.ID]; !exists {
		return errNotFound()
	}
	clone := *session
	s.byID[session.ID] = &clone
	return nil
}
