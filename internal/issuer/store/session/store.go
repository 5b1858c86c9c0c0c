// Package session persists issuance exchange sessions.
package session

import (
	"context"

	"fides/internal/issuer/models"
	domainerrors "fides/pkg/domain-errors"
)

// Store is the persistence contract for issuance sessions. GetByCode
// matches either the pre-authorized code or the tx code, whichever the
// wallet presented.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByCode(ctx context.Context, code string) (*models.Session, error)
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

func errNotFound() error {
	return domainerrors.New(domainerrors.CodeMissingResource, "issuance session not found")
}

func errAlreadyExists() error {
	return domainerrors.New(domainerrors.CodeConflict, "issuance session already exists")
}
