// Package dispatcher accepts audit submissions and fans queued runs out to workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/worker"
)

// Dispatcher registers runs and fans queue work out to a pool of workers.
type Dispatcher struct {
	queue   audit.Queue
	workers []*worker.Worker
	runs    audit.RunStore
	ids     audit.IDGenerator
	clock   audit.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue audit.Queue,
	workers []*worker.Worker,
	runs audit.RunStore,
	ids audit.IDGenerator,
	clock audit.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		runs:    runs,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit assigns a run ID when the request has none, records the run as queued and
// enqueues it. A run that cannot be queued is recorded as failed.
func (d *Dispatcher) Submit(ctx context.Context, request audit.Request) (audit.RunRecord, error) {
	if request.StartURL == "" && len(request.URLs) == 0 {
		return audit.RunRecord{}, audit.ErrNoTargets
	}
	if request.RunID == "" {
		id, err := d.ids.NewID()
		if err != nil {
			return audit.RunRecord{}, fmt.Errorf("assign run id: %w", err)
		}
		request.RunID = id
	}
	now := d.now()
	record := audit.RunRecord{
		ID:         request.RunID,
		Status:     audit.RunStatusQueued,
		ClinicName: request.Profile.ClinicName,
		StartURL:   request.StartURL,
		URLs:       request.URLs,
		Submitted:  now,
	}
	if err := d.runs.CreateRun(ctx, record); err != nil {
		return audit.RunRecord{}, fmt.Errorf("create run: %w", err)
	}
	if err := d.Enqueue(ctx, audit.QueueItem{Request: request, Submitted: now.UnixNano()}); err != nil {
		record.Status = audit.RunStatusFailed
		record.ErrorText = err.Error()
		record.Finished = &now
		if upErr := d.runs.UpdateRun(context.WithoutCancel(ctx), record); upErr != nil {
			d.logger.Error("mark unqueued run failed", zap.String("run_id", record.ID), zap.Error(upErr))
		}
		return record, err
	}
	d.logger.Info("run queued", zap.String("run_id", record.ID), zap.String("clinic", record.ClinicName))
	return record, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item audit.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}
