package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/progress"
)

// LogSink writes one structured log line per event. Ticks log at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageTick:
			s.logger.Debug("run progress", append(fields,
				zap.String("phase", string(evt.Phase)),
				zap.Int("done", evt.Done),
				zap.Int("total", evt.Total),
			)...)
		case progress.StageRunError:
			s.logger.Warn("run failed", append(fields, zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))...)
		case progress.StageRunDone, progress.StageRunEmpty:
			s.logger.Info("run finished", append(fields,
				zap.Int("pages", evt.Pages),
				zap.Int("ok", evt.Summary.OK),
				zap.Int("warning", evt.Summary.Warning),
				zap.Int("error", evt.Summary.Error),
				zap.Duration("dur", evt.Dur),
			)...)
		default:
			s.logger.Info("run started", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
