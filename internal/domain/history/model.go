package history

import (
	"time"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
)

// HistoryRecord is one past analysis for a patient as reported by the
// analysis service. Analysis is nil for records that never completed.
type HistoryRecord struct {
	ID           string                        `json:"id"`
	CaseID       string                        `json:"caseId,omitempty"`
	PatientID    string                        `json:"patientId"`
	CreatedAt    time.Time                     `json:"createdAt"`
	Status       string                        `json:"status,omitempty"`
	Analysis     *analysis.RawAnalysisResponse `json:"analysis,omitempty"`
	ReviewerNote string                        `json:"reviewerNote,omitempty"`
}

// HistoryPage is one page of a patient's history, newest first.
type HistoryPage struct {
	Items []HistoryRecord `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

// View is a read-only copy of the aggregated history.
type View struct {
	Records []HistoryRecord `json:"records"`
	Page    int             `json:"page"`
	Total   int             `json:"total"`
	HasMore bool            `json:"hasMore"`
}
