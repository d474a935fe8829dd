package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 에러 필드명은 json 태그 기준
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldError describes one rejected request field
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RequestError is returned when a request body cannot be accepted
type RequestError struct {
	Errors []FieldError
}

func (e *RequestError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// DecodeAndValidate reads a JSON body, applies defaults, then validates
// 순서: decode → defaults → validate
func DecodeAndValidate(r *http.Request, req interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return &RequestError{Errors: []FieldError{{Code: "ERR_BODY", Message: fmt.Sprintf("invalid JSON body: %v", err)}}}
	}

	if err := defaults.Set(req); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}

	if err := validate.StructCtx(r.Context(), req); err != nil {
		return toRequestError(err)
	}
	return nil
}

func toRequestError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &RequestError{Errors: []FieldError{{Code: "ERR_UNKNOWN", Message: err.Error()}}}
	}

	out := make([]FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		out = append(out, FieldError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: message(fe),
		})
	}
	return &RequestError{Errors: out}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date (%s)", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
