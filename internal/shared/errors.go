package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates the caller has no resolved identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden indicates the caller's role does not permit the action.
	ErrForbidden = errors.New("not authorized")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SafeError carries a message that may be shown to end users verbatim.
// Validation and precondition failures across the domain packages are
// declared with NewSafeError so the HTTP layer can distinguish them from
// backend faults.
type SafeError struct {
	msg string
}

// NewSafeError declares a user-presentable error.
func NewSafeError(msg string) *SafeError {
	return &SafeError{msg: msg}
}

func (e *SafeError) Error() string {
	return e.msg
}

// genericRetryMessage hides backend details from the UI layer.
const genericRetryMessage = "Something went wrong. Please try again."

// UserSafeMessage translates any error into a message suitable for the UI.
// This is the only place backend errors are converted to user-facing text, so
// the mapping stays centrally auditable: safe errors pass through verbatim,
// auth errors stay generic, everything else collapses to a retry hint.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe *SafeError
	if errors.As(err, &safe) {
		return safe.Error()
	}
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return "Not authenticated"
	case errors.Is(err, ErrForbidden):
		return "Not authorized"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return genericRetryMessage
	}
}
