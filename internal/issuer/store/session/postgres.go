package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fides/internal/issuer/models"
)

// PostgresStore persists sessions in the issuance_sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertSession = `
INSERT INTO issuance_sessions
	(id, name, pre_auth_code, tx_code, step, vc_type, uri, token, aud,
	 holder_did, issuer_did, credential_id, credential, credential_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, insertSession,
		session.ID, session.Name, session.PreAuthCode, session.TxCode, session.Step,
		session.VCType, nullString(session.URI), session.Token, session.Audience,
		nullString(session.HolderDID), nullString(session.IssuerDID),
		session.CredentialID, nullString(session.Credential), nullString(session.CredentialData),
	)
	if err != nil {
		return fmt.Errorf("insert issuance session: %w", err)
	}
	return nil
}

const selectSession = `
SELECT id, name, pre_auth_code, tx_code, step, vc_type, uri, token, aud,
	holder_did, issuer_did, credential_id, credential, credential_data
FROM issuance_sessions `

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return s.get(ctx, selectSession+"WHERE id = $1", id)
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	return s.get(ctx, selectSession+"WHERE pre_auth_code = $1 OR tx_code = $1", code)
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	return s.get(ctx, selectSession+"WHERE token = $1", token)
}

func (s *PostgresStore) get(ctx context.Context, query, arg string) (*models.Session, error) {
	var (
		session        models.Session
		uri            sql.NullString
		holderDID      sql.NullString
		issuerDID      sql.NullString
		credential     sql.NullString
		credentialData sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&session.ID, &session.Name, &session.PreAuthCode, &session.TxCode, &session.Step,
		&session.VCType, &uri, &session.Token, &session.Audience,
		&holderDID, &issuerDID, &session.CredentialID, &credential, &credentialData,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("select issuance session: %w", err)
	}
	session.URI = uri.String
	session.HolderDID = holderDID.String
	session.IssuerDID = issuerDID.String
	session.Credential = credential.String
	session.CredentialData = credentialData.String
	return &session, nil
}

const updateSession = `
UPDATE issuance_sessions
SET uri = $2, holder_did = $3, issuer_did = $4, credential = $5, credential_data = $6
WHERE id = $1`

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	res, err := s.db.ExecContext(ctx, updateSession,
		session.ID, nullString(session.URI), nullString(session.HolderDID),
		nullString(session.IssuerDID), nullString(session.Credential), nullString(session.CredentialData),
	)
	if err != nil {
		return fmt.Errorf("update issuance session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update issuance session: %w", err)
	}
	if affected == 0 {
		return errNotFound()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
