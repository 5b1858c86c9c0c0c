// Package audit defines the audit trail records emitted by the credential
// exchange flows and the publisher that ships them to kafka.
package audit

import "time"

// Action identifies what happened in an exchange.
type Action string

const (
	ActionVerificationStarted  Action = "verification.started"
	ActionVerificationVerified Action = "verification.verified"
	ActionVerificationFailed   Action = "verification.failed"
	ActionIssuanceStarted      Action = "issuance.started"
	ActionCredentialIssued     Action = "credential.issued"
	ActionIssuanceCompleted    Action = "issuance.completed"
)

// Event is one audit record. SubjectDID may be empty while an exchange is
// still anonymous, i.e. before the wallet has presented anything.
type Event struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	ExchangeID string    `json:"exchange_id"`
	SubjectDID string    `json:"subject_did,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
