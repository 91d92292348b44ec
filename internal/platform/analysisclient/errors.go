package analysisclient

import (
	"fmt"
	"net/http"
)

// SubmissionError means a case could not be submitted. Submissions are not
// retried automatically.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit case: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit case: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTimeoutError means the analysis was still processing after every
// attempt. The request id stays valid for a later re-poll.
type PollTimeoutError struct {
	RequestID string
	Attempts  int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("analysis %s still processing after %d attempts", e.RequestID, e.Attempts)
}

// PollFailedError means the service reported the analysis as failed, or
// rejected the poll outright.
type PollFailedError struct {
	RequestID  string
	Status     string
	StatusCode int
	Reason     string
}

func (e *PollFailedError) Error() string {
	msg := fmt.Sprintf("analysis %s failed", e.RequestID)
	if e.Status != "" {
		msg += " with status " + e.Status
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StatusError is an unexpected HTTP status from a history or note call.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}
