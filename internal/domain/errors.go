package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCancelled         = errors.New("pipeline cancelled")
	ErrNotCancellable    = errors.New("job is not cancellable")
	ErrProviderFailure   = errors.New("provider failure")
)

// ValidationError reports a malformed or missing config field.
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

// UpstreamUnavailableError reports required upstream configuration missing at startup.
type UpstreamUnavailableError struct {
	Missing []string
}

func (e *UpstreamUnavailableError) Error() string {
	return "upstream unavailable: missing " + strings.Join(e.Missing, ", ")
}
