package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"project-hub-backend/pkg/database"
)

// Kind classifies a service error; handlers map it onto an HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

// Error is the error type returned by every service command.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// FieldInvalid is a validation error about a single field.
func FieldInvalid(field, message string) *Error {
	return Validation(message, FieldError{Field: field, Message: message})
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// storeErr translates a store error. notFound is the message used when the
// record is missing.
func storeErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: notFound, Err: err}
	}
	return fmt.Errorf("store: %w", err)
}

var validate = newValidate()

// newValidate reports fields by their JSON names and adds notblank, which
// rejects whitespace-only strings.
func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// checkStruct runs the validate tags of every value and merges the failures
// into one validation error.
func checkStruct(values ...any) error {
	var fields []FieldError
	for _, value := range values {
		err := validate.Struct(value)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return Validation("Validation failed", fields...)
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return name + " is required"
	case "email":
		return "Please provide a valid email"
	case "isdefault":
		return name + " cannot be changed here"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		if fe.Param() == "0" {
			return name + " cannot be negative"
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", name, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", name, bound, fe.Param())
	}
	return name + " is invalid"
}
