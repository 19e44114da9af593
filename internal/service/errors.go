package service

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the services; match with errors.Is
var (
	ErrBadSignature = errors.New("invalid signature")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidQuery = errors.New("invalid query parameters")
)

// FieldError identifies one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail for a rejected payload or
// query. Kind is ErrValidation or ErrInvalidQuery.
type ValidationError struct {
	Kind   error
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Kind.Error()
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return e.Kind.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
