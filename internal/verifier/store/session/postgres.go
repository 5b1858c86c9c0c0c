package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fides/internal/verifier/models"
)

// PostgresStore persists sessions in the verification_sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertSession = `
INSERT INTO verification_sessions
	(id, state, nonce, vc_type, audience, holder, vpt, success, status, created_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, insertSession,
		session.ID, session.State, session.Nonce, session.VCType, session.Audience,
		nullString(session.Holder), nullString(session.VPT), session.Success,
		string(session.Status), session.CreatedAt, session.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification session: %w", err)
	}
	return nil
}

const selectSession = `
SELECT id, state, nonce, vc_type, audience, holder, vpt, success, status, created_at, ended_at
FROM verification_sessions `

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return s.get(ctx, selectSession+"WHERE id = $1", id)
}

func (s *PostgresStore) GetByState(ctx context.Context, state string) (*models.Session, error) {
	return s.get(ctx, selectSession+"WHERE state = $1", state)
}

func (s *PostgresStore) get(ctx context.Context, query, arg string) (*models.Session, error) {
	var (
		session models.Session
		holder  sql.NullString
		vpt     sql.NullString
		status  string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&session.ID, &session.State, &session.Nonce, &session.VCType, &session.Audience,
		&holder, &vpt, &session.Success, &status, &session.CreatedAt, &session.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("select verification session: %w", err)
	}
	session.Holder = holder.String
	session.VPT = vpt.String
	session.Status = models.Status(status)
	return &session, nil
}

const updateSession = `
UPDATE verification_sessions
SET holder = $2, vpt = $3, success = $4, status = $5, ended_at = $6
WHERE id = $1`

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	res, err := s.db.ExecContext(ctx, updateSession,
		session.ID, nullString(session.Holder), nullString(session.VPT),
		session.Success, string(session.Status), session.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update verification session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification session: %w", err)
	}
	if affected == 0 {
		return errNotFound()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
