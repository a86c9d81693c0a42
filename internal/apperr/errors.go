// Package apperr holds the error taxonomy shared by the services, the auth
// gate and the HTTP handlers. Handlers map these to status codes; nothing
// else about an error is ever sent to a client.
package apperr

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing token")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("version conflict")
	ErrTooManyRequests    = errors.New("too many requests")
)

// ValidationError reports a rejected input field. Message is safe to show to
// the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return "validation failed: " + e.Field + ": " + e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage returns the caller-safe message of a ValidationError found in
// err's chain, or fallback.
func UserMessage(err error, fallback string) string {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Message != "" {
		return ve.Message
	}
	return fallback
}
