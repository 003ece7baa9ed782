package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "smsinbox/pkg/errors"
	"smsinbox/pkg/models"
)

// ValidationKind tells a malformed body apart from field rule failures.
type ValidationKind string

const (
	KindMalformedJSON ValidationKind = "malformed_json"
	KindInvalidFields ValidationKind = "invalid_fields"
)

// ValidationError describes why a payload was rejected. Fields is ordered
// by payload field order.
type ValidationError struct {
	Kind   ValidationKind
	Fields []pkgerrors.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

// AppError renders e as the 422 response error.
func (e *ValidationError) AppError() *pkgerrors.Error {
	fields := e.Fields
	if fields == nil {
		fields = []pkgerrors.FieldError{}
	}
	return pkgerrors.ErrValidation.
		WithDetail("kind", string(e.Kind)).
		WithFields(fields)
}

type webhookRequest struct {
	MessageID string  `json:"message_id" validate:"required"`
	From      string  `json:"from" validate:"required,msisdn"`
	To        string  `json:"to" validate:"required,msisdn"`
	TS        string  `json:"ts" validate:"required,strict_ts"`
	Text      *string `json:"text" validate:"omitempty,max=4096"`
}

// Validator decodes and checks webhook payloads. It never touches storage.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return models.ValidMSISDN(fl.Field().String())
	})
	_ = v.RegisterValidation("strict_ts", func(fl validator.FieldLevel) bool {
		return models.ValidTimestamp(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Validate decodes raw as a single JSON object and applies the field rules.
// Unknown fields are ignored.
func (v *Validator) Validate(raw []byte) (*models.Message, *ValidationError) {
	var req webhookRequest

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Kind: KindMalformedJSON}
	}

	if err := v.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, &ValidationError{Kind: KindInvalidFields}
		}

		fields := make([]pkgerrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, pkgerrors.FieldError{
				Field:  fe.Field(),
				Reason: reason(fe),
			})
		}
		return nil, &ValidationError{Kind: KindInvalidFields, Fields: fields}
	}

	msg := models.NewMessageBuilder().
		WithID(req.MessageID).
		WithFrom(req.From).
		WithTo(req.To).
		WithTS(req.TS).
		WithOptionalText(req.Text).
		Build()

	return msg, nil
}

func decodeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &ValidationError{
			Kind: KindMalformedJSON,
			Fields: []pkgerrors.FieldError{{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("must be a %s", typeErr.Type.Kind()),
			}},
		}
	}
	return &ValidationError{Kind: KindMalformedJSON}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "msisdn":
		return models.ReasonMSISDNFormat
	case "strict_ts":
		if s, ok := fe.Value().(string); ok {
			return models.CheckTimestamp(s)
		}
		return models.ReasonTimestampFormat
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
