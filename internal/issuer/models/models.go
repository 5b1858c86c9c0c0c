// Package models holds the issuance exchange session records.
package models

import (
	"github.com/google/uuid"

	"fides/pkg/random"
)

// Session is one OIDC4VCI issuance exchange. The three opaque secrets are
// independent: PreAuthCode authorizes the token request, TxCode gates the
// two-phase variant, Token is the bearer for the credential endpoint.
type Session struct {
	ID          string
	Name        string
	PreAuthCode string
	TxCode      string
	// Step selects the two-phase flow: the credential offer carries the
	// tx code instead of the pre-authorized code.
	Step     bool
	VCType   string
	URI      string
	Token    string
	Audience string

	HolderDID string
	IssuerDID string

	CredentialID   string
	Credential     string
	CredentialData string
}

// NewSession creates an issuance session with fresh secrets. VCType
// carries the requested credential type list as JSON.
func NewSession(id, name, vcType, audience string) *Session {
	return &Session{
		ID:           id,
		Name:         name,
		PreAuthCode:  random.OpaqueToken(),
		TxCode:       random.OpaqueToken(),
		Step:         true,
		VCType:       vcType,
		Token:        random.OpaqueToken(),
		Audience:     audience,
		CredentialID: uuid.NewString(),
	}
}

// PeerRecord registers the credential recipient as a newly known
// dataspace participant once delivery completes.
type PeerRecord struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantSlug string `json:"participant_slug"`
	VCURI           string `json:"vc_uri"`
	ParticipantType string `json:"participant_type"`
	BaseURL         string `json:"base_url"`
	IsVCIssued      bool   `json:"is_vc_issued"`
	IsMe            bool   `json:"is_me"`
}
