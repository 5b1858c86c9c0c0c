// Package session persists verification exchange sessions.
package session

import (
	"context"

	"fides/internal/verifier/models"
	domainerrors "fides/pkg/domain-errors"
)

// Store is the persistence contract for verification sessions. The
// service layer never touches it; handlers load a session, hand it to the
// service and write it back.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByState(ctx context.Context, state string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

func errNotFound() error {
	return domainerrors.New(domainerrors.CodeMissingResource, "verification session not found")
}

func errAlreadyExists() error {
	return domainerrors.New(domainerrors.CodeConflict, "verification session already exists")
}
