package session

import (
	"context"
	"sync"

	"fides/internal/issuer/models"
)

// MemoryStore keeps sessions in a map. Suitable for single-node
// deployments and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*models.Session)}
}

func (s *MemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[session.ID]; exists {
		return errAlreadyExists()
	}
	clone := *session
	s.byID[session.ID] = &clone
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

func (s *MemoryStore) GetByCode(_ context.Context, code string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.byID {
		if session.PreAuthCode == code || session.TxCode == code {
			clone := *session
			return &clone, nil
		}
	}
	return nil, errNotFound()
}

func (s *MemoryStore) GetByToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.byID {
		if session.Token == token {
			clone := *session
			return &clone, nil
		}
	}
	return nil, errNotFound()
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
