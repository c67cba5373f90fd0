package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/progress"
)

// Snapshot is the latest known progress of a run.
type Snapshot struct {
	RunID   string        `json:"run_id"`
	Stage   string        `json:"stage"`
	Phase   string        `json:"phase,omitempty"`
	Done    int           `json:"done"`
	Total   int           `json:"total"`
	Pages   int           `json:"pages,omitempty"`
	Summary audit.Summary `json:"summary"`
	Note    string        `json:"note,omitempty"`
	Updated time.Time     `json:"updated"`
}

// SnapshotSink keeps the latest Snapshot per run in memory.
type SnapshotSink struct {
	mu   sync.RWMutex
	runs map[string]Snapshot
}

// NewSnapshotSink returns an empty sink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{runs: make(map[string]Snapshot)}
}

// Consume folds the batch into the stored snapshots. Events older than the stored
// snapshot are ignored.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		snap, ok := s.runs[evt.RunID]
		if ok && evt.TS.Before(snap.Updated) {
			continue
		}
		if ok && progress.Stage(snap.Stage).Terminal() {
			continue
		}
		snap.RunID = evt.RunID
		snap.Stage = string(evt.Stage)
		snap.Updated = evt.TS
		switch evt.Stage {
		case progress.StageTick:
			snap.Phase = string(evt.Phase)
			snap.Done = evt.Done
			snap.Total = evt.Total
		case progress.StageRunDone, progress.StageRunEmpty:
			snap.Pages = evt.Pages
			snap.Summary = evt.Summary
		case progress.StageRunError:
			snap.Note = evt.Note
		}
		s.runs[evt.RunID] = snap
	}
	return nil
}

// Get returns the snapshot for runID.
func (s *SnapshotSink) Get(runID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.runs[runID]
	return snap, ok
}

// Forget drops a run's snapshot.
func (s *SnapshotSink) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
