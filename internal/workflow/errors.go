package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysisclient"
)

var (
	ErrNoPatient        = errors.New("no patient selected")
	ErrInvalidDraft     = errors.New("case draft has validation errors")
	ErrConsentRequired  = errors.New("patient consent is required before submission")
	ErrSubmissionActive = errors.New("a submission is already in progress")
	ErrNotInErrorState  = errors.New("workflow is not in the error state")
	ErrNothingToRepoll  = errors.New("no timed-out analysis to poll again")
	ErrNoteRequired     = errors.New("case id and note text are required")
	ErrClosed           = errors.New("workflow closed")
)

// TimeoutMessage is shown when polling gives up while the analysis is still
// processing.
const TimeoutMessage = "analysis taking longer than expected"

// StageError records which pipeline stage failed.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is the human-readable description shown to the user.
func (e *StageError) Message() string {
	var (
		timeout *analysisclient.PollTimeoutError
		failed  *analysisclient.PollFailedError
		submit  *analysisclient.SubmissionError
	)
	switch {
	case errors.As(e.Err, &timeout):
		return TimeoutMessage
	case errors.As(e.Err, &failed):
		if failed.Reason != "" {
			return "analysis failed: " + failed.Reason
		}
		return "analysis failed"
	case errors.As(e.Err, &submit):
		return "could not submit the case for analysis, please try again"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "the analysis service did not respond in time"
	default:
		return e.Err.Error()
	}
}

// Timeout reports whether the failure was a poll timeout, which can be
// re-polled without resubmitting.
func (e *StageError) Timeout() bool {
	var timeout *analysisclient.PollTimeoutError
	return e.Stage == StatePolling && errors.As(e.Err, &timeout)
}
