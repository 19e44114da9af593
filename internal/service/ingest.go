package service

import (
	"context"
	"errors"
	"time"

	"webhook-ingest/backend/internal/audit"
	"webhook-ingest/backend/internal/store"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/metrics"
	"webhook-ingest/backend/pkg/middleware"
	"webhook-ingest/backend/pkg/signature"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const auditTimeout = 2 * time.Second

// IngestResult describes an accepted delivery
type IngestResult struct {
	// Outcome is metrics.ResultCreated or metrics.ResultDuplicate
	Outcome   string
	MessageID string
}

// Duplicate reports whether the message had been accepted before
func (r *IngestResult) Duplicate() bool {
	return r.Outcome == metrics.ResultDuplicate
}

// IngestService runs each webhook delivery through verification, validation
// and the idempotent insert
type IngestService struct {
	verifier *signature.Verifier
	store    store.MessageStore
	audit    audit.Recorder
	log      *logger.Logger
	tracer   trace.Tracer
}

// NewIngestService creates an IngestService
func NewIngestService(verifier *signature.Verifier, messages store.MessageStore, recorder audit.Recorder, log *logger.Logger) *IngestService {
	if log == nil {
		log = logger.GetGlobal()
	}
	if recorder == nil {
		recorder = audit.NewLogRecorder(log)
	}
	return &IngestService{
		verifier: verifier,
		store:    messages,
		audit:    recorder,
		log:      log,
		tracer:   otel.Tracer("webhook-ingest/backend/internal/service"),
	}
}

// Ingest processes one delivery. body must be the raw request bytes exactly
// as received. Created and duplicate deliveries both return a result and a
// nil error; rejections return ErrBadSignature, a *ValidationError, or an
// error wrapping store.ErrUnavailable.
func (s *IngestService) Ingest(ctx context.Context, body []byte, sig string) (*IngestResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ingest.webhook")
	defer span.End()

	span.AddEvent("verifying")
	if !s.verifier.VerifyRequest(ctx, body, sig) {
		s.finish(ctx, span, start, "", metrics.ResultBadSignature, nil)
		return nil, ErrBadSignature
	}

	span.AddEvent("validating")
	msg, messageID, err := decodePayload(body)
	if err != nil {
		s.finish(ctx, span, start, messageID, metrics.ResultValidationError, err)
		return nil, err
	}

	span.AddEvent("storing")
	res, err := s.store.InsertIfAbsent(ctx, msg)
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			err = errors.Join(store.ErrUnavailable, err)
		}
		s.finish(ctx, span, start, messageID, metrics.ResultStoreError, err)
		return nil, err
	}

	outcome := metrics.ResultCreated
	if res == store.InsertDuplicate {
		outcome = metrics.ResultDuplicate
	}
	s.finish(ctx, span, start, messageID, outcome, nil)
	return &IngestResult{Outcome: outcome, MessageID: messageID}, nil
}

// finish records the terminal outcome exactly once per delivery
func (s *IngestService) finish(ctx context.Context, span trace.Span, start time.Time, messageID, outcome string, err error) {
	metrics.WebhookRequestsTotal.WithLabelValues(outcome).Inc()

	span.SetAttributes(
		attribute.String("webhook.result", outcome),
		attribute.String("webhook.message_id", messageID),
	)
	if outcome == metrics.ResultStoreError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
	}

	rec := audit.Record{
		RequestID: middleware.GetRequestID(ctx),
		MessageID: messageID,
		Result:    outcome,
		Dup:       outcome == metrics.ResultDuplicate,
		Latency:   time.Since(start),
		At:        time.Now().UTC(),
	}

	// The audit write must not be cut short by a client that hung up
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if aerr := s.audit.Record(auditCtx, rec); aerr != nil {
		logger.FromContextOr(ctx, s.log).LogError(aerr, "Failed to record audit entry", "message_id", messageID, "result", outcome)
	}
}
