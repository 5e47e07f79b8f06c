package conversation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no conversation exists for the id.
	ErrNotFound = errors.New("conversation: not found")
	// ErrVersionConflict indicates a conditional write lost to a concurrent writer.
	ErrVersionConflict = errors.New("conversation: version conflict")
)

// Error kinds reported to API callers and the callback errors channel.
const (
	KindValidation      = "validation_error"
	KindParse           = "parse_error"
	KindExternalService = "external_service_error"
	KindTerminalState   = "terminal_state_error"
	KindNotFound        = "not_found"
	KindInternal        = "internal_error"
)

// ValidationError rejects a malformed initiate request before any state exists.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "conversation: invalid request: " + strings.Join(e.Problems, "; ")
}

func newValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// ParseError means an inbound email could not be tied to a conversation.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("conversation: cannot parse %q: %s", e.Input, e.Reason)
}

// ExternalServiceError wraps a failure of one of the injected collaborators.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("conversation: %s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func externalErr(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

// TerminalStateError is returned when a caller asks to change a finished conversation.
type TerminalStateError struct {
	ConversationID string
	Status         Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("conversation: %s is %s and cannot change", e.ConversationID, e.Status)
}

// ErrorKind maps an error to the kind string used on the wire.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		parse      *ParseError
		external   *ExternalServiceError
		terminal   *TerminalStateError
		transition *TransitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &parse):
		return KindParse
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &terminal), errors.As(err, &transition):
		return KindTerminalState
	case errors.As(err, &external), errors.Is(err, ErrVersionConflict):
		return KindExternalService
	default:
		return KindInternal
	}
}
