package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// FieldError is one failed form field, ready for the templates.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

// Validator checks form structs with go-playground/validator.
type Validator struct {
	validate *validator.Validate
}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns the failed fields of data keyed by struct field name.
// An empty map means data is valid.
func (v *Validator) Validate(data any) map[string]FieldError {
	failed := make(map[string]FieldError)

	err := v.validate.Struct(data)
	if err == nil {
		return failed
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		failed[""] = FieldError{Tag: err.Error()}

		return failed
	}

	for _, fe := range errs {
		failed[fe.Field()] = FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		}
	}

	return failed
}
