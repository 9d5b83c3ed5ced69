package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrConfiguration     = errors.New("extraction service is not configured")
	ErrSubmission        = errors.New("failed to submit extraction job")
	ErrPoll              = errors.New("failed to get extraction results")
	ErrJobNotFound       = errors.New("extraction job not found")
	ErrJobFailed         = errors.New("extraction failed")
	ErrTimeout           = errors.New("extraction timed out")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrMalformedResponse = errors.New("malformed response")
)

// RemoteError is a non-2xx answer from the extraction service.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
