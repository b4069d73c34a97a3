package app

import (
	"errors"
	"fmt"
)

// ValidationError rejects an operation before any network call is made:
// empty message, unknown mode, missing file.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransportError wraps a failed exchange with the backend: network failure,
// non-2xx status, or a malformed stream event. Msg carries the backend's
// error message when one was present, otherwise a generic fallback.
type TransportError struct {
	Op  string
	Msg string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError signals a consent id the backend no longer recognizes
// (already executed, or expired server-side). The client offers no recovery
// beyond showing the message.
type ProtocolError struct {
	ConsentID string
	Msg       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("consent %s: %s", e.ConsentID, e.Msg)
}
