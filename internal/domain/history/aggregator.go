package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/pkg/pagination"
)

// ErrPatientMismatch is returned when a page is applied to an aggregator
// that has since been reset for another patient.
var ErrPatientMismatch = errors.New("history page belongs to a different patient")

// Fetcher loads one page of a patient's history.
type Fetcher interface {
	FetchHistory(ctx context.Context, patientID string, page, limit int) (HistoryPage, error)
}

// Aggregator merges paginated history for a single patient session. It is
// not safe for concurrent use; the owning controller serialises access.
type Aggregator struct {
	fetcher  Fetcher
	pageSize int

	patientID string
	records   []HistoryRecord
	page      int
	total     int
	hasMore   bool
	hydrated  bool
}

func NewAggregator(fetcher Fetcher, pageSize int) *Aggregator {
	if pageSize <= 0 {
		pageSize = pagination.DefaultLimit
	}
	return &Aggregator{fetcher: fetcher, pageSize: pageSize, records: []HistoryRecord{}}
}

// Reset discards everything and starts a new session for patientID.
func (a *Aggregator) Reset(patientID string) {
	a.patientID = patientID
	a.records = []HistoryRecord{}
	a.page = 0
	a.total = 0
	a.hasMore = false
	a.hydrated = false
}

func (a *Aggregator) PatientID() string { return a.patientID }

func (a *Aggregator) PageSize() int { return a.pageSize }

// NextPage is the page LoadMore should request.
func (a *Aggregator) NextPage() int { return a.page + 1 }

func (a *Aggregator) HasMore() bool { return a.hasMore }

// Fetch performs the remote call without touching aggregator state, so it
// can run outside the owner's lock.
func (a *Aggregator) Fetch(ctx context.Context, patientID string, page int) (HistoryPage, error) {
	if a.fetcher == nil {
		return HistoryPage{}, errors.New("history fetcher not configured")
	}
	p, err := a.fetcher.FetchHistory(ctx, patientID, page, a.pageSize)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("fetching history page %d: %w", page, err)
	}
	if p.Page <= 0 {
		p.Page = page
	}
	return p, nil
}

// Apply merges a fetched page. Page 1 replaces the list; later pages are
// appended in server order, skipping records already present.
func (a *Aggregator) Apply(patientID string, p HistoryPage) error {
	if patientID != a.patientID {
		return ErrPatientMismatch
	}

	if p.Page <= 1 {
		a.records = make([]HistoryRecord, 0, len(p.Items))
	}
	seen := make(map[string]bool, len(a.records))
	for _, r := range a.records {
		seen[r.ID] = true
	}
	for _, r := range p.Items {
		if r.ID != "" && seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		a.records = append(a.records, r)
	}

	a.page = p.Page
	if a.page < 1 {
		a.page = 1
	}
	a.total = p.Total
	if a.total > 0 {
		a.hasMore = pagination.Params{Page: a.page, Limit: a.pageSize}.HasNext(a.total)
	} else {
		a.hasMore = len(p.Items) >= a.pageSize
	}
	return nil
}

// FetchPage fetches and applies a page in one step.
func (a *Aggregator) FetchPage(ctx context.Context, patientID string, page int) error {
	p, err := a.Fetch(ctx, patientID, page)
	if err != nil {
		return err
	}
	return a.Apply(patientID, p)
}

// Hydrate returns the normalized analysis of the most recent record when
// nothing is displayed yet. It only ever succeeds once per session and
// never replaces an existing analysis.
func (a *Aggregator) Hydrate(current *analysis.NormalizedAnalysis) (*analysis.NormalizedAnalysis, bool) {
	if a.hydrated || a.page == 0 {
		return nil, false
	}
	a.hydrated = true
	if current != nil || len(a.records) == 0 || a.records[0].Analysis == nil {
		return nil, false
	}
	first := a.records[0]
	n := analysis.Normalize(first.Analysis)
	if n.CaseID == "" {
		n.CaseID = firstNonEmpty(first.CaseID, first.ID)
	}
	return &n, true
}

// AttachNote records a reviewer note on the local copy of a record.
func (a *Aggregator) AttachNote(recordID, note string) bool {
	for i := range a.records {
		if a.records[i].ID == recordID || (a.records[i].CaseID != "" && a.records[i].CaseID == recordID) {
			a.records[i].ReviewerNote = note
			return true
		}
	}
	return false
}

// View returns a copy of the aggregated history.
func (a *Aggregator) View() View {
	records := make([]HistoryRecord, len(a.records))
	copy(records, a.records)
	return View{Records: records, Page: a.page, Total: a.total, HasMore: a.hasMore}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
