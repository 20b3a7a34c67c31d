// Package apperr defines the error taxonomy shared across Raido.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDateRange means the requested end date precedes the start
	// date. Validated before any network call.
	ErrInvalidDateRange = errors.New("end date precedes start date")

	// ErrPlaybackDegenerate means the working set holds fewer than two
	// distinct dates, so automatic playback is disabled.
	ErrPlaybackDegenerate = errors.New("playback requires at least two distinct dates")
)

// AuthError wraps a failure during token acquisition: credential rejection,
// transport failure, or a malformed token response. It aborts the whole
// fetch operation and is never retried automatically.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// SourceError wraps a per-source transport or parse failure during data
// retrieval. It is recovered locally: the source is skipped and surfaced
// as a warning.
type SourceError struct {
	Source string
	Cause  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }
