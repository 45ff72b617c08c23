// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput is returned when a caller supplies bad arguments,
	// for example an empty batch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a job, item or pattern is unknown.
	ErrNotFound = errors.New("not found")

	// ErrRateLimitTimeout is returned when a rate limit token could not be
	// acquired before the timeout elapsed.
	ErrRateLimitTimeout = errors.New("rate limit token not acquired within timeout")

	// ErrTransientService is returned for vision service faults that are
	// likely to succeed on retry (timeouts, overload, 5xx).
	ErrTransientService = errors.New("transient vision service error")

	// ErrPermanentService is returned for vision service faults that will not
	// succeed without changing the input (4xx, malformed responses).
	ErrPermanentService = errors.New("permanent vision service error")

	// ErrInvalidFeedback is returned when a review submission is malformed.
	ErrInvalidFeedback = errors.New("invalid feedback")

	// ErrItemTerminal is returned when a terminal batch item is mutated.
	ErrItemTerminal = errors.New("batch item is already terminal")

	// ErrJobTerminal is returned when a terminal batch job is mutated.
	ErrJobTerminal = errors.New("batch job is already terminal")
)

// IsTransient reports whether err should be retried by the annotation worker.
// Rate limit timeouts count as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService) || errors.Is(err, ErrRateLimitTimeout)
}
