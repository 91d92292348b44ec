package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysisclient"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateEditing, true},
		{StateEditing, StateSubmitting, true},
		{StateSubmitting, StatePolling, true},
		{StatePolling, StateNormalizing, true},
		{StateNormalizing, StateReviewed, true},
		{StateSubmitting, StateError, true},
		{StatePolling, StateError, true},
		{StateNormalizing, StateError, true},
		{StateError, StateEditing, true},
		{StateError, StatePolling, true},
		{StateReviewed, StateEditing, true},
		{StatePolling, StateEditing, true},

		{StateIdle, StateSubmitting, false},
		{StateEditing, StateReviewed, false},
		{StateError, StateSubmitting, false},
		{StateReviewed, StateSubmitting, false},
		{StatePolling, StateReviewed, false},
		{StateEditing, StateError, false},
	}
	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestState_Busy(t *testing.T) {
	for _, s := range []State{StateSubmitting, StatePolling, StateNormalizing} {
		if !s.Busy() {
			t.Errorf("expected %s busy", s)
		}
	}
	for _, s := range []State{StateIdle, StateEditing, StateReviewed, StateError} {
		if s.Busy() {
			t.Errorf("expected %s not busy", s)
		}
	}
}

func TestStageError_Message(t *testing.T) {
	tests := []struct {
		name    string
		err     *StageError
		want    string
		timeout bool
	}{
		{
			name:    "poll timeout",
			err:     &StageError{Stage: StatePolling, Err: &analysisclient.PollTimeoutError{RequestID: "r1", Attempts: 30}},
			want:    TimeoutMessage,
			timeout: true,
		},
		{
			name: "wrapped poll timeout",
			err:  &StageError{Stage: StatePolling, Err: fmt.Errorf("poll: %w", &analysisclient.PollTimeoutError{RequestID: "r1"})},
			want: TimeoutMessage, timeout: true,
		},
		{
			name: "failed with reason",
			err:  &StageError{Stage: StatePolling, Err: &analysisclient.PollFailedError{RequestID: "r1", Status: "failed", Reason: "model unavailable"}},
			want: "analysis failed: model unavailable",
		},
		{
			name: "submission",
			err:  &StageError{Stage: StateSubmitting, Err: &analysisclient.SubmissionError{StatusCode: 500, Err: errors.New("x")}},
			want: "could not submit the case for analysis, please try again",
		},
		{
			name: "other",
			err:  &StageError{Stage: StateNormalizing, Err: errors.New("odd")},
			want: "odd",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
			if got := tt.err.Timeout(); got != tt.timeout {
				t.Errorf("Timeout() = %v, want %v", got, tt.timeout)
			}
		})
	}
}
