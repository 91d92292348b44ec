package workflow

import (
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
)

// ErrorView is the presentation form of a pipeline failure.
type ErrorView struct {
	Stage     State  `json:"stage"`
	Message   string `json:"message"`
	CanRepoll bool   `json:"canRepoll"`
}

// Snapshot is a copy of the controller state. Analysis is shared but never
// modified once published.
type Snapshot struct {
	State           State                        `json:"state"`
	PatientID       string                       `json:"patientId,omitempty"`
	Draft           intake.CaseDraft             `json:"draft"`
	Validation      intake.ValidationReport      `json:"validation"`
	Analysis        *analysis.NormalizedAnalysis `json:"analysis,omitempty"`
	History         history.View                 `json:"history"`
	HistoryError    string                       `json:"historyError,omitempty"`
	RequestID       string                       `json:"requestId,omitempty"`
	ConsentGranted  bool                         `json:"consentGranted"`
	AwaitingConsent bool                         `json:"awaitingConsent"`
	Error           *ErrorView                   `json:"error,omitempty"`
	Err             error                        `json:"-"`
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	report := c.report
	report.Errors = append([]intake.FieldError{}, c.report.Errors...)

	s := Snapshot{
		State:           c.state,
		PatientID:       c.patientID,
		Draft:           c.draft.Clone(),
		Validation:      report,
		Analysis:        c.analysis,
		History:         c.history.View(),
		HistoryError:    c.historyErr,
		RequestID:       c.requestID,
		ConsentGranted:  c.consent,
		AwaitingConsent: c.pending != nil,
	}
	if c.stageErr != nil {
		s.Err = c.stageErr
		s.Error = &ErrorView{
			Stage:     c.stageErr.Stage,
			Message:   c.stageErr.Message(),
			CanRepoll: c.stageErr.Timeout() && c.requestID != "",
		}
	}
	return s
}
