package github

import (
	"errors"
	"fmt"
	"time"
)

// The remote client distinguishes three failure classes. Transient failures
// are retried with backoff; authorization and not-found failures abort the
// pull without touching local state and are never retried.

// TransientError covers network failures, rate limiting and remote 5xx
// responses. RetryAfter carries the server's hint when one was provided.
type TransientError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("github: transient error (status %d, retry after %s): %s", e.StatusCode, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("github: transient error (status %d): %s", e.StatusCode, e.Message)
}

// AuthorizationError signals stale or invalid remote credentials. The
// connection must be re-established externally before another pull.
type AuthorizationError struct {
	StatusCode int
	Message    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("github: authorization failed (status %d): %s", e.StatusCode, e.Message)
}

// NotFoundError signals a missing repository, branch or path. User-correctable.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("github: not found: %s", e.Resource)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
