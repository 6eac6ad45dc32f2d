package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/events"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("trigger", evt.Trigger),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Source != "" {
			fields = append(fields,
				zap.String("source", evt.Source),
				zap.String("outcome", evt.Outcome),
				zap.Int("rooms", evt.Rooms),
				zap.Int("slots", evt.Slots),
				zap.Bool("fallback", evt.Fallback),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("run event", fields...)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
