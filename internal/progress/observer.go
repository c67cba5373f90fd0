package progress

import (
	"sync"
	"time"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// RunObserver adapts an Emitter to audit.Observer for one run. Done never moves
// backwards within a phase, even when ticks arrive out of order from the pool.
type RunObserver struct {
	emitter Emitter
	runID   string
	now     func() time.Time

	mu      sync.Mutex
	started time.Time
	done    map[audit.Phase]int
}

// NewRunObserver binds emitter to runID. clock may be nil.
func NewRunObserver(emitter Emitter, runID string, clock audit.Clock) *RunObserver {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &RunObserver{
		emitter: emitter,
		runID:   runID,
		now:     now,
		done:    make(map[audit.Phase]int),
	}
}

// Start emits RUN_START.
func (o *RunObserver) Start() {
	ts := o.now()
	o.mu.Lock()
	o.started = ts
	o.mu.Unlock()
	o.emit(Event{Stage: StageRunStart, TS: ts})
}

// OnProgress implements audit.Observer.
func (o *RunObserver) OnProgress(p audit.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p.Done < o.done[p.Phase] {
		p.Done = o.done[p.Phase]
	}
	o.done[p.Phase] = p.Done
	o.emit(Event{Stage: StageTick, TS: o.now(), Phase: p.Phase, Done: p.Done, Total: p.Total})
}

// OnSummary implements audit.Observer.
func (o *RunObserver) OnSummary(outcome audit.Outcome) {
	stage := StageRunDone
	if outcome.Empty {
		stage = StageRunEmpty
	}
	ts := o.now()
	o.emit(Event{
		Stage:   stage,
		TS:      ts,
		Summary: outcome.Summary,
		Pages:   len(outcome.CheckedURLs),
		Dur:     o.elapsed(ts),
	})
}

// Fail emits RUN_ERROR with err's text.
func (o *RunObserver) Fail(err error) {
	ts := o.now()
	evt := Event{Stage: StageRunError, TS: ts, Dur: o.elapsed(ts)}
	if err != nil {
		evt.Note = err.Error()
	}
	o.emit(evt)
}

func (o *RunObserver) elapsed(at time.Time) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started.IsZero() {
		return 0
	}
	if d := at.Sub(o.started); d > 0 {
		return d
	}
	return 0
}

func (o *RunObserver) emit(evt Event) {
	if o == nil || o.emitter == nil {
		return
	}
	evt.RunID = o.runID
	o.emitter.Emit(evt)
}
