// Package audit records one entry per terminal webhook outcome.
package audit

import (
	"context"
	"errors"
	"time"

	"webhook-ingest/backend/pkg/logger"
)

// Record describes how one webhook delivery ended
type Record struct {
	RequestID string
	MessageID string
	Result    string
	Dup       bool
	Latency   time.Duration
	At        time.Time
}

// LatencyMs is the latency in fractional milliseconds
func (r Record) LatencyMs() float64 {
	return float64(r.Latency.Microseconds()) / 1000
}

// Recorder persists audit records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// LogRecorder writes audit records as structured log lines
type LogRecorder struct {
	log *logger.Logger
}

// NewLogRecorder creates a LogRecorder
func NewLogRecorder(log *logger.Logger) *LogRecorder {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &LogRecorder{log: log}
}

// Record logs rec as a single line
func (l *LogRecorder) Record(_ context.Context, rec Record) error {
	args := []any{
		"result", rec.Result,
		"dup", rec.Dup,
		"latency_ms", rec.LatencyMs(),
	}
	if rec.RequestID != "" {
		args = append(args, "request_id", rec.RequestID)
	}
	if rec.MessageID != "" {
		args = append(args, "message_id", rec.MessageID)
	}
	l.log.Info("webhook processed", args...)
	return nil
}

// Multi fans a record out to several recorders
type Multi []Recorder

// Record sends rec to every recorder and joins their errors
func (m Multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
