package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized marks a request the backend rejected with 401.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrRejected marks any other non-success response.
	ErrRejected = errors.New("remote: request rejected")
	// ErrInvalidResponse marks a success response that could not be decoded.
	ErrInvalidResponse = errors.New("remote: invalid response")

	errMissingBaseURL     = errors.New("remote: base url required")
	errMissingCredentials = errors.New("remote: credential source required")
)

// SubmissionError describes a failed backend call. StatusCode is zero when no response was
// received.
type SubmissionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote: request failed: %s", e.Message)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSubmissionError reports whether err wraps a SubmissionError.
func IsSubmissionError(err error) bool {
	var target *SubmissionError
	return errors.As(err, &target)
}

// Message returns the user-facing message of err, preferring the backend's own wording.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var target *SubmissionError
	if errors.As(err, &target) && target.Message != "" {
		return target.Message
	}
	return err.Error()
}
