package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)
