package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptySearchTerm = errors.New("search term cannot be empty")
	ErrQueueFull       = errors.New("job queue is full")
	ErrJobNotFound     = errors.New("job not found")
)

// SessionError is returned when the browser automation engine cannot start.
type SessionError struct {
	Engine string
	Err    error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session (%s) failed to start: %v", e.Engine, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// ChallengeError is returned when the search box never shows up, which usually
// means an anti-automation interstitial is in front of the page.
type ChallengeError struct {
	URL  string
	Kind string // recaptcha, hcaptcha, turnstile, unusual_traffic, consent, unknown
	Err  error
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("search not available at %s (suspected %s challenge): %v", e.URL, e.Kind, e.Err)
}

func (e *ChallengeError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors from a record middleware.
type PipelineError struct {
	Stage  string
	Record BusinessRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %q failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
