package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Callers classify failures with
// errors.Is and wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrUnauthorized means there is no authenticated caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means a referenced entity is absent or not owned by the
	// caller. Ownership violations are deliberately indistinguishable from
	// missing rows.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited means an external quota is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrExternalService means a collaborator (store, mail, AI) is
	// unavailable or returned an unusable response.
	ErrExternalService = errors.New("external service failure")
)

// RateLimitError carries the token bucket's state so the caller can report
// when to retry. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	Remaining  int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %d seconds", int(e.RetryAfter.Seconds()+0.999))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
