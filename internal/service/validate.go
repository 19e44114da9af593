package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"webhook-ingest/backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	msisdnPattern = regexp.MustCompile(`^\+[0-9A-Za-z]+$`)
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their JSON names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
			return msisdnPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("utc_rfc3339", func(fl validator.FieldLevel) bool {
			_, err := parseUTCTimestamp(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// parseUTCTimestamp accepts RFC 3339 timestamps that use the Z designator
func parseUTCTimestamp(v string) (time.Time, error) {
	if !strings.HasSuffix(v, "Z") {
		return time.Time{}, errors.New("timestamp must end with Z")
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"notblank":    "%s must not be blank",
	"msisdn":      "%s must start with + followed by letters or digits",
	"utc_rfc3339": "%s must be an ISO-8601 UTC timestamp ending in Z",
	"integer":     "%s must be an integer",
	"datetime":    "%s must be an RFC3339 timestamp",
}

func translateError(fe validator.FieldError) string {
	field := fe.Field()
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}

	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// validateStruct runs the validator and converts failures to a
// *ValidationError of the given kind
func validateStruct(s any, kind error) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &ValidationError{Kind: kind, Fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: translateError(fe),
		}
	}
	return &ValidationError{Kind: kind, Fields: fields}
}

// payloadFieldName maps a decoder field reference, which may be the Go
// field name, to the JSON name callers sent
func payloadFieldName(name string) string {
	t := reflect.TypeOf(models.WebhookPayload{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		jsonName, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if f.Name == name || jsonName == name {
			return jsonName
		}
	}
	return name
}

// decodePayload parses and validates a webhook body into a message candidate
func decodePayload(body []byte) (*models.Message, string, error) {
	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		field := FieldError{Field: "body", Tag: "json", Message: "body must be a JSON object"}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			name := payloadFieldName(typeErr.Field)
			field = FieldError{
				Field:   name,
				Tag:     "type",
				Message: fmt.Sprintf("%s must be a %s", name, typeErr.Type.String()),
			}
		}
		return nil, "", &ValidationError{Kind: ErrValidation, Fields: []FieldError{field}}
	}

	if err := validateStruct(&payload, ErrValidation); err != nil {
		return nil, payload.MessageID, err
	}

	ts, err := parseUTCTimestamp(payload.Ts)
	if err != nil {
		return nil, payload.MessageID, &ValidationError{Kind: ErrValidation, Fields: []FieldError{{
			Field:   "ts",
			Tag:     "utc_rfc3339",
			Message: fmt.Sprintf(errorMessageTemplates["utc_rfc3339"], "ts"),
		}}}
	}

	return &models.Message{
		MessageID: payload.MessageID,
		From:      payload.From,
		To:        payload.To,
		Ts:        ts,
		Text:      payload.Text,
	}, payload.MessageID, nil
}
