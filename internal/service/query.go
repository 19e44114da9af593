package service

import (
	"context"
	"strconv"
	"time"

	"webhook-ingest/backend/internal/models"
	"webhook-ingest/backend/internal/store"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/metrics"
)

// Listing bounds
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// RawListParams holds query parameters as received. A nil field was absent.
type RawListParams struct {
	Limit  *string
	Offset *string
	From   *string
	Since  *string
	Q      *string
}

// ListParams are validated listing parameters
type ListParams struct {
	Limit  int                 `json:"limit" validate:"min=1,max=100"`
	Offset int                 `json:"offset" validate:"min=0"`
	Filter models.MessageFilter `json:"-"`
}

// ParseListParams applies defaults to absent parameters and rejects present
// ones that are malformed or out of range
func ParseListParams(raw RawListParams) (ListParams, error) {
	p := ListParams{Limit: DefaultLimit}
	var fields []FieldError

	parseInt := func(name string, v *string, dst *int) {
		if v == nil {
			return
		}
		n, err := strconv.Atoi(*v)
		if err != nil {
			fields = append(fields, FieldError{Field: name, Tag: "integer", Message: name + " must be an integer"})
			return
		}
		*dst = n
	}
	parseInt("limit", raw.Limit, &p.Limit)
	parseInt("offset", raw.Offset, &p.Offset)

	if raw.From != nil {
		p.Filter.From = *raw.From
	}
	if raw.Q != nil {
		p.Filter.Query = *raw.Q
	}
	if raw.Since != nil && *raw.Since != "" {
		since, err := time.Parse(time.RFC3339Nano, *raw.Since)
		if err != nil {
			fields = append(fields, FieldError{Field: "since", Tag: "datetime", Message: "since must be an RFC3339 timestamp"})
		} else {
			since = since.UTC()
			p.Filter.Since = &since
		}
	}

	if err := validateStruct(&p, ErrInvalidQuery); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			fields = append(fields, verr.Fields...)
		}
	}

	if len(fields) > 0 {
		return ListParams{}, &ValidationError{Kind: ErrInvalidQuery, Fields: dedupeFields(fields)}
	}
	return p, nil
}

// dedupeFields keeps the first error reported for each field, so a limit that
// failed to parse is not also reported as out of range
func dedupeFields(fields []FieldError) []FieldError {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		out = append(out, f)
	}
	return out
}

// QueryService serves filtered, paginated listings
type QueryService struct {
	store store.MessageStore
	log   *logger.Logger
}

// NewQueryService creates a QueryService
func NewQueryService(messages store.MessageStore, log *logger.Logger) *QueryService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &QueryService{store: messages, log: log}
}

// ParseParams validates raw parameters, counting rejections
func (s *QueryService) ParseParams(raw RawListParams) (ListParams, error) {
	p, err := ParseListParams(raw)
	if err != nil {
		metrics.QueryRequestsTotal.WithLabelValues("messages", "invalid").Inc()
	}
	return p, err
}

// List returns the requested page with the filtered total
func (s *QueryService) List(ctx context.Context, p ListParams) (*models.MessagePage, error) {
	data, total, err := s.store.List(ctx, p.Filter, p.Limit, p.Offset)
	if err != nil {
		metrics.QueryRequestsTotal.WithLabelValues("messages", "error").Inc()
		logger.FromContextOr(ctx, s.log).Warn("Listing failed",
			"limit", p.Limit,
			"offset", p.Offset,
			"error", err.Error(),
		)
		return nil, err
	}
	metrics.QueryRequestsTotal.WithLabelValues("messages", "ok").Inc()

	return &models.MessagePage{
		Data:   data,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}, nil
}
