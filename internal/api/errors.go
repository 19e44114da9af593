package api

import (
	stderrors "errors"
	"net/http"

	"webhook-ingest/backend/internal/service"
	"webhook-ingest/backend/internal/store"
	"webhook-ingest/backend/pkg/errors"
)

// toAppError maps service outcomes onto the public error envelope.
// Anything unrecognised becomes a generic 500 with no engine detail.
func toAppError(err error) *errors.AppError {
	var maxBytes *http.MaxBytesError
	var verr *service.ValidationError

	switch {
	case stderrors.Is(err, service.ErrBadSignature):
		return errors.NewUnauthorizedError(errors.CodeInvalidSignature, "invalid signature")
	case stderrors.As(err, &verr):
		code, msg := errors.CodeValidation, "validation failed"
		if stderrors.Is(err, service.ErrInvalidQuery) {
			code, msg = errors.CodeInvalidQuery, "invalid query parameters"
		}
		return errors.NewUnprocessableError(code, msg).WithDetails(verr.Fields)
	case stderrors.As(err, &maxBytes):
		return errors.NewRequestEntityTooLargeError(errors.CodePayloadTooLarge, "request body too large")
	case stderrors.Is(err, store.ErrUnavailable):
		return errors.NewServiceUnavailableError(errors.CodeStoreUnavailable, "message store unavailable")
	default:
		return errors.FromError(err)
	}
}
