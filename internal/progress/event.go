package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// Stage denotes the run milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageTick     Stage = "TICK"
	StageRunDone  Stage = "RUN_DONE"
	StageRunEmpty Stage = "RUN_EMPTY"
	StageRunError Stage = "RUN_ERROR"
)

// Terminal reports whether no further events follow for the run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunEmpty || s == StageRunError
}

// Event is one progress notification for a run.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// Phase, Done and Total are set on TICK events.
	Phase audit.Phase
	Done  int
	Total int
	// Summary and Pages are set on RUN_DONE.
	Summary audit.Summary
	Pages   int
	Dur     time.Duration
	// Note carries error text on RUN_ERROR.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunEmpty, StageRunError:
	case StageTick:
		if e.Phase == "" {
			return errors.New("tick requires phase")
		}
		if e.Done < 0 || e.Total < 0 {
			return errors.New("tick counts must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
