package errors

import "fmt"

// ErrorCode represents a Pagemark error code.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION_ERROR"    // malformed note rejected at the store boundary
	ErrNotFound           ErrorCode = "NOT_FOUND"           // note or version does not exist
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"      // local persistence full; recover by export/cleanup
	ErrNetworkUnavailable ErrorCode = "NETWORK_UNAVAILABLE" // sync cycle aborted; retried next tick
	ErrDecryptionFailed   ErrorCode = "DECRYPTION_FAILED"   // per-note; recovered with a placeholder
	ErrInternal           ErrorCode = "INTERNAL"
)

// PagemarkError represents a structured error with code and details.
type PagemarkError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PagemarkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation creates a VALIDATION_ERROR.
func NewValidation(msg string) *PagemarkError {
	return &PagemarkError{
		Code:    ErrValidation,
		Message: msg,
	}
}

// NewNotFound creates a NOT_FOUND error for a note or version identifier.
func NewNotFound(identifier string) *PagemarkError {
	return &PagemarkError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewQuotaExceeded creates a QUOTA_EXCEEDED error. The caller should prompt
// for export or cleanup rather than dropping the write silently.
func NewQuotaExceeded(err error) *PagemarkError {
	msg := "local storage quota exhausted"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &PagemarkError{
		Code:    ErrQuotaExceeded,
		Message: msg,
	}
}

// NewNetworkUnavailable creates a NETWORK_UNAVAILABLE error.
func NewNetworkUnavailable(err error) *PagemarkError {
	msg := "remote store unreachable"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &PagemarkError{
		Code:    ErrNetworkUnavailable,
		Message: msg,
	}
}

// NewDecryptionFailed creates a DECRYPTION_FAILED error for a single note.
// Never fatal for a whole sync cycle.
func NewDecryptionFailed(noteID string) *PagemarkError {
	return &PagemarkError{
		Code:    ErrDecryptionFailed,
		Message: "envelope did not authenticate",
		Details: map[string]any{"note_id": noteID},
	}
}

// NewInternal creates an INTERNAL error for unexpected failures.
func NewInternal(err error) *PagemarkError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PagemarkError{
		Code:    ErrInternal,
		Message: msg,
	}
}

// Is checks if an error is a PagemarkError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*PagemarkError); ok {
		return pErr.Code == code
	}
	return false
}
