package oauth

import (
	"errors"
	"fmt"
)

// Common errors for the token supplier.
var (
	ErrTokenRequestFailed   = errors.New("token request failed")
	ErrInvalidResponse      = errors.New("invalid token response")
	ErrMissingClientID      = errors.New("missing client ID")
	ErrMissingClientSecret  = errors.New("missing client secret")
	ErrMissingTokenEndpoint = errors.New("missing token endpoint")

	// ErrNoEntry is returned by a TokenStore holding no entry.
	ErrNoEntry = errors.New("no token entry")
)

// UpstreamError is a non-2xx answer from the token endpoint.
type UpstreamError struct {
	StatusCode  int
	Status      string
	Code        string
	Description string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrTokenRequestFailed, e.Status)
	if e.Description != "" {
		msg += " " + e.Description
	}
	return msg
}

// Unwrap lets errors.Is match ErrTokenRequestFailed.
func (e *UpstreamError) Unwrap() error {
	return ErrTokenRequestFailed
}
