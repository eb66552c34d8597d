package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoHashtags     = errors.New("at least one hashtag is required")
	ErrInvalidHashtag = errors.New("invalid hashtag")
	ErrAlreadyActive  = errors.New("poller already active")
)

// AuthError is an authentication or authorization failure. Polling stops.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream auth failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream auth failed (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError asks the caller to wait ResetAfter before the next request.
// A zero ResetAfter means the upstream gave no hint.
type RateLimitError struct {
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limited, reset in %s", e.ResetAfter)
}

// TransientError wraps network, status and decode failures that are retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "upstream transient error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// ErrorClass is the retry policy bucket of an upstream error.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassTerminal
	ClassThrottled
)

// Classify maps an upstream error onto its retry policy. Anything that is
// not recognizably auth or rate limiting is transient.
func Classify(err error) ErrorClass {
	var auth *AuthError
	if errors.As(err, &auth) {
		return ClassTerminal
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassThrottled
	}
	return ClassTransient
}
