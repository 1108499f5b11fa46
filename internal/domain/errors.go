package domain

import (
	"errors"
	"fmt"
)

// returned when a sync for the same tenant is already running
var ErrSyncInProgress = errors.New("sync already in progress")

// AuthError reports a missing or rejected access token.
type AuthError struct {
	API    string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error: %s", e.API, e.Reason)
}

// UpstreamError is a non-transient HTTP failure from an external API.
type UpstreamError struct {
	API        string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.API, e.StatusCode, e.Body)
}

// TransientUpstreamError is a rate-limit or retryable failure. Clients retry
// it internally and only return it once attempts are exhausted.
type TransientUpstreamError struct {
	UpstreamError
	Cause error
}

func (e *TransientUpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s API transient failure: %v", e.API, e.Cause)
	}
	return fmt.Sprintf("%s API transient failure (status %d): %s", e.API, e.StatusCode, e.Body)
}

func (e *TransientUpstreamError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports a referenced tenant, ad account, token or record that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ValidationError reports malformed request input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
