package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
)

type mockFetcher struct {
	pages map[int]HistoryPage
	calls []int
	err   error
}

func (m *mockFetcher) FetchHistory(_ context.Context, patientID string, page, limit int) (HistoryPage, error) {
	m.calls = append(m.calls, page)
	if m.err != nil {
		return HistoryPage{}, m.err
	}
	p, ok := m.pages[page]
	if !ok {
		return HistoryPage{Page: page, Limit: limit}, nil
	}
	return p, nil
}

func record(id string, conf float64) HistoryRecord {
	s := analysis.Score(conf)
	return HistoryRecord{
		ID:        id,
		PatientID: "p1",
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:    "completed",
		Analysis: &analysis.RawAnalysisResponse{
			ID:               "case-" + id,
			PrimaryDiagnosis: &analysis.RawDiagnosis{Condition: "Condition " + id, Confidence: &s},
		},
	}
}

func records(prefix string, n int) []HistoryRecord {
	out := make([]HistoryRecord, n)
	for i := range out {
		out[i] = record(fmt.Sprintf("%s%d", prefix, i), 0.5)
	}
	return out
}

func TestAggregator_FirstPageReplaces(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: records("a", 3), Page: 1, Total: 3},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")

	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := a.View()
	if len(v.Records) != 3 {
		t.Errorf("expected 3 records after refetching page 1, got %d", len(v.Records))
	}
	if v.HasMore {
		t.Error("expected no more pages")
	}
}

func TestAggregator_LaterPagesAppendAndDedupe(t *testing.T) {
	page1 := records("a", 2)
	page2 := append([]HistoryRecord{page1[1]}, records("b", 2)...)
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: page1, Page: 1, Total: 4},
		2: {Items: page2, Page: 2, Total: 4},
	}}
	a := NewAggregator(f, 2)
	a.Reset("p1")

	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.HasMore() {
		t.Fatal("expected more pages after page 1 of 4 items")
	}
	if err := a.FetchPage(context.Background(), "p1", a.NextPage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := a.View()
	want := []string{"a0", "a1", "b0", "b1"}
	if len(v.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(v.Records))
	}
	for i, id := range want {
		if v.Records[i].ID != id {
			t.Errorf("record %d: expected %s, got %s", i, id, v.Records[i].ID)
		}
	}
	if v.Page != 2 || v.HasMore {
		t.Errorf("expected page 2 with no more, got %+v", v)
	}
}

func TestAggregator_HasMoreWithoutTotal(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: records("a", 2), Page: 1},
	}}
	a := NewAggregator(f, 2)
	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.HasMore() {
		t.Error("a full page without a total should report more")
	}
}

func TestAggregator_ApplyRejectsOtherPatient(t *testing.T) {
	a := NewAggregator(&mockFetcher{}, 10)
	a.Reset("p2")
	err := a.Apply("p1", HistoryPage{Items: records("a", 1), Page: 1})
	if !errors.Is(err, ErrPatientMismatch) {
		t.Fatalf("expected ErrPatientMismatch, got %v", err)
	}
	if len(a.View().Records) != 0 {
		t.Error("stale page should not be applied")
	}
}

func TestAggregator_FetchError(t *testing.T) {
	f := &mockFetcher{err: errors.New("boom")}
	a := NewAggregator(f, 10)
	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestAggregator_HydrateOnce(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: []HistoryRecord{record("r1", 0.9), record("r0", 0.3)}, Page: 1, Total: 2},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")

	if _, ok := a.Hydrate(nil); ok {
		t.Fatal("hydrate before page 1 should not succeed")
	}
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := a.Hydrate(nil)
	if !ok || got == nil {
		t.Fatal("expected hydration from the most recent record")
	}
	if got.PrimaryDiagnosis().Condition != "Condition r1" || got.ConfidenceScore != 90 {
		t.Errorf("unexpected hydrated analysis: %+v", got.PrimaryDiagnosis())
	}
	if _, ok := a.Hydrate(nil); ok {
		t.Error("hydration must happen at most once per session")
	}

	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.Hydrate(nil); !ok {
		t.Error("a new session should hydrate again")
	}
}

func TestAggregator_HydrateNeverOverrides(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: []HistoryRecord{record("r1", 0.9)}, Page: 1, Total: 1},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	current := &analysis.NormalizedAnalysis{CaseID: "cached"}
	if _, ok := a.Hydrate(current); ok {
		t.Fatal("hydration must not replace an existing analysis")
	}
	if _, ok := a.Hydrate(nil); ok {
		t.Error("hydration is spent even when skipped")
	}
}

func TestAggregator_HydrateSkipsRecordWithoutAnalysis(t *testing.T) {
	pending := HistoryRecord{ID: "r2", PatientID: "p1", Status: "processing"}
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: []HistoryRecord{pending, record("r1", 0.9)}, Page: 1, Total: 2},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.Hydrate(nil); ok {
		t.Error("expected no hydration when the most recent record has no analysis")
	}
}

func TestAggregator_AttachNote(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: records("a", 2), Page: 1, Total: 2},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")
	if err := a.FetchPage(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.AttachNote("a1", "reviewed") {
		t.Fatal("expected note attached")
	}
	if a.View().Records[1].ReviewerNote != "reviewed" {
		t.Errorf("note not stored: %+v", a.View().Records[1])
	}
	if a.AttachNote("missing", "x") {
		t.Error("expected false for unknown record")
	}
}

func TestAggregator_ViewIsCopy(t *testing.T) {
	f := &mockFetcher{pages: map[int]HistoryPage{
		1: {Items: records("a", 1), Page: 1, Total: 1},
	}}
	a := NewAggregator(f, 10)
	a.Reset("p1")
	_ = a.FetchPage(context.Background(), "p1", 1)
	v := a.View()
	v.Records[0].ReviewerNote = "mutated"
	if a.View().Records[0].ReviewerNote != "" {
		t.Error("view shares storage with the aggregator")
	}
}
