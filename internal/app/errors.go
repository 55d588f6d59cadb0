package app

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login failures never reveal whether an account exists.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken reports a password reset token that is unknown,
	// already used, or past its expiry.
	ErrInvalidToken = errors.New("password reset token is invalid or has expired")
)

// ValidationError carries user-facing field messages for a rejected form.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// AsValidation unwraps a ValidationError if err is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
