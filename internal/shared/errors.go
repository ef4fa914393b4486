package shared

import "errors"

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
)

// UserSafeMessage maps internal errors to a message that can be shown to API
// consumers without leaking infrastructure details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request was already processed"
	default:
		return "The request could not be completed"
	}
}
