package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the data service rejects the token.
	ErrUnauthorized = errors.New("authentication token not accepted")

	// ErrSubmissionFailed covers every other rejected upload.
	ErrSubmissionFailed = errors.New("upload not accepted")

	// ErrUnexpectedResponse is a non-202 poll response that carries no
	// recognizable processing status.
	ErrUnexpectedResponse = errors.New("unexpected job status response")

	// ErrPollFailed wraps a status request or wait that failed after the
	// upload was accepted, including cancellation.
	ErrPollFailed = errors.New("job status polling failed")
)

// SubmissionError records the HTTP status of a rejected upload.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", ErrSubmissionFailed, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", ErrSubmissionFailed, e.StatusCode)
}

func (e *SubmissionError) Unwrap() error { return ErrSubmissionFailed }

// UnexpectedResponseError describes a terminal poll response that could
// not be classified.
type UnexpectedResponseError struct {
	StatusCode int
	Status     string // raw processing_status, if any
	Err        error  // decode failure, if any
}

func (e *UnexpectedResponseError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", ErrUnexpectedResponse, e.StatusCode, e.Err)
	case e.Status != "":
		return fmt.Sprintf("%s: HTTP %d: unknown processing status %q", ErrUnexpectedResponse, e.StatusCode, e.Status)
	default:
		return fmt.Sprintf("%s: HTTP %d", ErrUnexpectedResponse, e.StatusCode)
	}
}

func (e *UnexpectedResponseError) Unwrap() error { return ErrUnexpectedResponse }
