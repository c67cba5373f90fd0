package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// RunStore keeps run records and their results in memory.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]audit.RunRecord
	results map[string][]audit.CheckResult
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[string]audit.RunRecord),
		results: make(map[string][]audit.CheckResult),
	}
}

// CreateRun registers a new run. IDs must be unique.
func (s *RunStore) CreateRun(_ context.Context, run audit.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// UpdateRun replaces the stored record for an existing run.
func (s *RunStore) UpdateRun(_ context.Context, run audit.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("update run %s: %w", run.ID, audit.ErrNotFound)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// SaveResults replaces the results of a run.
func (s *RunStore) SaveResults(_ context.Context, runID string, results []audit.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("save results %s: %w", runID, audit.ErrNotFound)
	}
	s.results[runID] = append([]audit.CheckResult(nil), results...)
	return nil
}

// GetRun returns the stored record or audit.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID string) (audit.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return audit.RunRecord{}, audit.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListResults returns the results of a run in the order they were saved.
func (s *RunStore) ListResults(_ context.Context, runID string) ([]audit.CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, audit.ErrNotFound
	}
	return append([]audit.CheckResult(nil), s.results[runID]...), nil
}

// ListRuns returns every run ordered by submission time, newest first.
func (s *RunStore) ListRuns() []audit.RunRecord {
	s.mu.RLock()
	out := make([]audit.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.After(out[j].Submitted)
	})
	return out
}

func cloneRun(run audit.RunRecord) audit.RunRecord {
	cp := run
	if run.URLs != nil {
		cp.URLs = append([]string(nil), run.URLs...)
	}
	if run.Started != nil {
		t := *run.Started
		cp.Started = &t
	}
	if run.Finished != nil {
		t := *run.Finished
		cp.Finished = &t
	}
	return cp
}
