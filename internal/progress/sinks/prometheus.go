package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/prelaunch-audit/internal/progress"
)

// PrometheusSink exports run lifecycle metrics derived from progress events.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	ticks         *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_progress_runs_started_total",
			Help: "Audit runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_progress_runs_completed_total",
			Help: "Audit runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_progress_runs_running",
			Help: "Audit runs currently in flight.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_progress_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"result"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_progress_ticks_total",
			Help: "Completed work units partitioned by phase.",
		}, []string{"phase"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.ticks,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageTick:
			s.ticks.WithLabelValues(string(evt.Phase)).Inc()
		case progress.StageRunDone, progress.StageRunEmpty, progress.StageRunError:
			result := resultLabel(evt.Stage)
			s.runsCompleted.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.RunID) {
				s.runsRunning.Dec()
			}
		}
	}
	return nil
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageRunEmpty:
		return "empty"
	case progress.StageRunError:
		return "error"
	default:
		return "success"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
