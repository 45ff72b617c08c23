package auth

import "errors"

// Reviewer token errors
var (
	// ErrInvalidToken indicates the token format is invalid or the signature doesn't match.
	ErrInvalidToken = errors.New("invalid reviewer token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("reviewer token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future).
	ErrTokenNotYetValid = errors.New("reviewer token not yet valid")

	// ErrMissingReviewer indicates a token was requested without a reviewer ID,
	// or a valid token carries an empty subject.
	ErrMissingReviewer = errors.New("reviewer ID is missing")
)
