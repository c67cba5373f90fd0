// Package worker executes queued audit runs and persists what they produce.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/metrics"
	"github.com/JakeFAU/prelaunch-audit/internal/progress"
	"github.com/JakeFAU/prelaunch-audit/internal/report/excel"
	"github.com/JakeFAU/prelaunch-audit/internal/storage"
)

// persistTimeout bounds the bookkeeping writes made after a run ends, which must
// succeed even when the run itself was canceled.
const persistTimeout = 10 * time.Second

const emptyRunText = "no pages could be fetched"

// Runner executes one audit run. *audit.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, request audit.Request, observer audit.Observer) (audit.Outcome, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a Notification per finished run. Empty disables publishing.
	Topic string
}

// Deps are the collaborators a Worker needs. Publisher, Emitter, Hasher and Clock may be nil.
type Deps struct {
	Queue     audit.Queue
	Runner    Runner
	Runs      audit.RunStore
	Blobs     audit.BlobStore
	Publisher audit.Publisher
	Hasher    audit.Hasher
	Clock     audit.Clock
	Emitter   progress.Emitter
}

// Notification is the payload published when a run finishes.
type Notification struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	ClinicName string        `json:"clinic_name,omitempty"`
	Pages      int           `json:"pages"`
	Summary    audit.Summary `json:"summary"`
	ReportURI  string        `json:"report_uri,omitempty"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Attributes exposes routing attributes for Pub/Sub subscribers.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID, "status": n.Status}
}

// Result is what Execute hands back to synchronous callers such as the CLI.
type Result struct {
	Outcome audit.Outcome
	Record  audit.RunRecord
	Report  []byte
}

// Worker consumes queue items and runs the audit pipeline for each.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Blobs == nil {
		deps.Blobs = storage.NoOpStore{}
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, audit.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.Request.RunID))
		if _, err := w.Execute(ctx, item.Request); err != nil {
			w.logger.Warn("run failed", zap.String("run_id", item.Request.RunID), zap.Error(err))
		}
	}
}

// Execute runs one request end to end: run record bookkeeping, the audit itself,
// report archiving, result persistence and the completion notification. A run the
// store does not know yet is registered first.
func (w *Worker) Execute(ctx context.Context, request audit.Request) (Result, error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("run_id", request.RunID))
	record, err := w.beginRun(ctx, request)
	if err != nil {
		return Result{}, err
	}

	observer := progress.NewRunObserver(w.deps.Emitter, request.RunID, w.deps.Clock)
	observer.Start()
	started := w.deps.Clock.Now()

	outcome, runErr := w.deps.Runner.Run(ctx, request, observer)

	// Bookkeeping must land even if ctx was canceled mid-run.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	result := Result{Outcome: outcome}
	finished := w.deps.Clock.Now()
	record.Finished = &finished

	switch {
	case runErr != nil:
		observer.Fail(runErr)
		record.Status = audit.RunStatusFailed
		record.ErrorText = runErr.Error()
	case outcome.Empty:
		record.Status = audit.RunStatusEmpty
		record.ErrorText = emptyRunText
	default:
		record.Status = audit.RunStatusSucceeded
		record.Summary = outcome.Summary
		report, uri, err := w.archiveReport(persistCtx, request.RunID, outcome.Results)
		if err != nil {
			logger.Warn("report archive failed", zap.Error(err))
		}
		result.Report = report
		record.ReportURI = uri
		if err := w.deps.Runs.SaveResults(persistCtx, request.RunID, outcome.Results); err != nil {
			record.Status = audit.RunStatusFailed
			record.ErrorText = fmt.Sprintf("save results: %v", err)
			runErr = fmt.Errorf("save results: %w", err)
		}
	}

	if err := w.deps.Runs.UpdateRun(persistCtx, record); err != nil {
		logger.Error("final run update failed", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("update run: %w", err)
		}
	}
	metrics.ObserveRun(string(record.Status), finished.Sub(started))
	w.notify(persistCtx, record, len(outcome.CheckedURLs), logger)

	logger.Info("run recorded",
		zap.String("status", string(record.Status)),
		zap.String("report_uri", record.ReportURI),
	)
	result.Record = record
	return result, runErr
}

func (w *Worker) beginRun(ctx context.Context, request audit.Request) (audit.RunRecord, error) {
	now := w.deps.Clock.Now()
	record, err := w.deps.Runs.GetRun(ctx, request.RunID)
	switch {
	case errors.Is(err, audit.ErrNotFound):
		record = audit.RunRecord{
			ID:         request.RunID,
			Status:     audit.RunStatusQueued,
			ClinicName: request.Profile.ClinicName,
			StartURL:   request.StartURL,
			URLs:       request.URLs,
			Submitted:  now,
		}
		if err := w.deps.Runs.CreateRun(ctx, record); err != nil {
			return audit.RunRecord{}, fmt.Errorf("create run: %w", err)
		}
	case err != nil:
		return audit.RunRecord{}, fmt.Errorf("load run: %w", err)
	}
	record.Status = audit.RunStatusRunning
	record.Started = &now
	if err := w.deps.Runs.UpdateRun(ctx, record); err != nil {
		return audit.RunRecord{}, fmt.Errorf("mark run running: %w", err)
	}
	return record, nil
}

func (w *Worker) archiveReport(ctx context.Context, runID string, results []audit.CheckResult) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := excel.Render(&buf, results); err != nil {
		return nil, "", fmt.Errorf("render report: %w", err)
	}
	report := buf.Bytes()
	if w.deps.Hasher == nil {
		return report, "", nil
	}
	key, err := storage.ReportKey(w.deps.Hasher, runID, report)
	if err != nil {
		return report, "", err
	}
	uri, err := w.deps.Blobs.PutObject(ctx, key, excel.ContentType, bytes.NewReader(report))
	if err != nil {
		return report, "", fmt.Errorf("put object: %w", err)
	}
	return report, uri, nil
}

func (w *Worker) notify(ctx context.Context, record audit.RunRecord, pages int, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return
	}
	msg := Notification{
		RunID:      record.ID,
		Status:     string(record.Status),
		ClinicName: record.ClinicName,
		Pages:      pages,
		Summary:    record.Summary,
		ReportURI:  record.ReportURI,
		Error:      record.ErrorText,
	}
	if record.Finished != nil {
		msg.FinishedAt = *record.Finished
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, msg)
	if err != nil {
		logger.Warn("publish run notification failed", zap.Error(err))
		return
	}
	logger.Debug("run notification published", zap.String("message_id", id))
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
