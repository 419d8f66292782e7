package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
)

// Assistant pipeline errors
var (
	ErrUpstreamTimeout   = ports.ErrUpstreamTimeout
	ErrMalformedResponse = ports.ErrMalformedResponse
	ErrScheduleEditParse = errors.New("assistant: schedule edit could not be parsed")
	ErrFilterValidation  = errors.New("assistant: filter validation failed")
	ErrUnsupportedAction = errors.New("assistant: unsupported action")
)

// Task errors
var (
	ErrTaskNotFound     = errors.New("task: not found")
	ErrTaskInvalidInput = domain.ErrValidation
)

// Auth and user errors
var (
	ErrUserNotFound       = errors.New("user: not found")
	ErrUserAlreadyExists  = errors.New("user: telegram id already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
)

// Smart tag errors
var (
	ErrSmartTagNotFound     = errors.New("smart_tag: not found")
	ErrSmartTagInvalidInput = errors.New("smart_tag: invalid input")
)

// Job errors
var (
	ErrJobNotFound = errors.New("job: not found")
)

// storeErr marks store deadline failures as upstream timeouts.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
