package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in trust-engine terms, not HTTP terms.
type Code string

const (
	// CodeFormat covers malformed DIDs, JWTs, claim sets and response bodies.
	CodeFormat Code = "format_error"
	// CodeSecurity covers signature failures and claim mismatches
	// (nonce, subject, issuer, holder) as well as temporal VC violations.
	CodeSecurity Code = "security_error"
	// CodePetition covers outbound fetch failures (DID document retrieval,
	// push-style finish callbacks).
	CodePetition Code = "petition_error"
	// CodeForbidden covers code/token mismatches on the issuance endpoints.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized is returned when no credential types are configured
	// for a presentation exchange.
	CodeUnauthorized Code = "unauthorized"
	// CodeMissingResource marks DID documents or sessions lacking a
	// required part.
	CodeMissingResource Code = "missing_resource"
	// CodeMissingAction marks exchanges where no credential satisfies a
	// requested descriptor.
	CodeMissingAction Code = "missing_action"
	// CodeNotImplemented marks unsupported DID methods and interaction
	// finish methods.
	CodeNotImplemented Code = "not_implemented"
	// CodeModuleNotActive is returned when an operation needs configuration
	// (e.g. a W3C data model version) that was never provided.
	CodeModuleNotActive Code = "module_not_active"

	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		// Preserve the original domain code, update message
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
