package common

import "errors"

var (
	// ErrValidation marks malformed input such as a send with neither text nor image.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing message or user.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")
)
