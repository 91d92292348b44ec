package analysissim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Case is one submitted analysis request and its progress.
type Case struct {
	ID             string
	PatientID      string
	Request        intake.AnalysisRequest
	Status         string
	PollsRemaining int
	CreatedAt      time.Time
	Result         *analysis.RawAnalysisResponse
	FailureReason  string
	Note           string
}

func (c *Case) record() history.HistoryRecord {
	return history.HistoryRecord{
		ID:           c.ID,
		CaseID:       c.ID,
		PatientID:    c.PatientID,
		CreatedAt:    c.CreatedAt,
		Status:       c.Status,
		Analysis:     c.Result,
		ReviewerNote: c.Note,
	}
}

// Store is a concurrency-safe in-memory case store.
type Store struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

func NewStore() *Store {
	return &Store{cases: make(map[string]*Case)}
}

func (s *Store) Create(c *Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cases[c.ID] = &cp
}

func (s *Store) Get(id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	cp := *c
	return &cp, nil
}

// Advance counts one poll against a processing case and finishes it with
// complete once no polls remain. It returns the case after the update.
func (s *Store) Advance(id string, complete func(*Case)) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	if c.Status == StatusProcessing {
		if c.PollsRemaining > 0 {
			c.PollsRemaining--
		} else {
			complete(c)
		}
	}
	cp := *c
	return &cp, nil
}

func (s *Store) SetNote(id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return fmt.Errorf("case %s not found", id)
	}
	c.Note = note
	return nil
}

// History returns the patient's cases as history records, newest first.
func (s *Store) History(patientID string) []history.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []history.HistoryRecord
	for _, c := range s.cases {
		if c.PatientID == patientID {
			out = append(out, c.record())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if out == nil {
		out = []history.HistoryRecord{}
	}
	return out
}
