// Package models holds the verification exchange session records.
package models

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"fides/pkg/random"
)

// Status is the lifecycle state of a verification exchange.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusVerified Status = "Verified"
	StatusFailed   Status = "Failed"
)

// Session is one OIDC4VP presentation exchange. ID, State, Nonce and
// Audience are fixed at creation; every claim comparison against them is
// exact string equality.
type Session struct {
	ID       string
	State    string
	Nonce    string
	VCType   string
	Audience string

	Holder  string
	VPT     string
	Success *bool

	Status    Status
	CreatedAt time.Time
	EndedAt   *time.Time
}

// NewSession creates a pending session for the given exchange id. The
// audience is the verifier's client id; VCType carries the requested
// credential type list as JSON.
func NewSession(id, audience, vcType string) *Session {
	return &Session{
		ID:        id,
		State:     random.Alphanumeric(12),
		Nonce:     random.Alphanumeric(12),
		VCType:    vcType,
		Audience:  audience,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Interaction is the grant negotiation record handed to Finish once a
// verification exchange concludes.
type Interaction struct {
	Method        string
	URI           string
	ClientNonce   string
	ASNonce       string
	InteractRef   string
	GrantEndpoint string
}

// Hash computes the GNAP interaction finish hash: the sha-256 of the
// newline joined nonces, interaction reference and grant endpoint,
// base64url encoded without padding.
func (i Interaction) Hash() string {
	input := i.ClientNonce + "\n" + i.ASNonce + "\n" + i.InteractRef + "\n" + i.GrantEndpoint
	sum := sha256.Sum256([]byte(input))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
