package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed upload or a directive that references
// an unknown or stale upload. Nothing is started when it is returned.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Subject, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(subject, reason string) *ValidationError {
	return &ValidationError{Subject: subject, Reason: reason}
}

// ProviderFailure is a single failed or timed-out call to an external
// provider. It is recovered locally by falling back, skipping, or degrading.
type ProviderFailure struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// NewProviderFailure wraps err as a ProviderFailure.
func NewProviderFailure(provider, operation string, err error) *ProviderFailure {
	return &ProviderFailure{Provider: provider, Operation: operation, Err: err}
}

// TargetFailure is a research run that ended in the failed phase.
type TargetFailure struct {
	Target string
	Phase  Phase
	Reason string
}

func (e *TargetFailure) Error() string {
	return fmt.Sprintf("target %s failed during %s: %s", e.Target, e.Phase, e.Reason)
}

// SessionFault is an unexpected fault in the streaming session, such as a
// directive of the wrong shape.
type SessionFault struct {
	Reason string
	Err    error
}

func (e *SessionFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Reason, e.Err)
	}
	return "session: " + e.Reason
}

func (e *SessionFault) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsProviderFailure reports whether err carries a ProviderFailure.
func IsProviderFailure(err error) bool {
	var pf *ProviderFailure
	return errors.As(err, &pf)
}
