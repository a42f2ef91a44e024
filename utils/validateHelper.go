package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the `validate` tags of v.
// Failures are returned wrapped in ErrValidation.
func ValidateStruct(v any) error {
	return validateAs(ErrValidation, v)
}

// ValidateArgument is ValidateStruct for direct ledger calls; failures wrap ErrInvalidArgument.
func ValidateArgument(v any) error {
	return validateAs(ErrInvalidArgument, v)
}

func validateAs(kind error, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", kind, err)
	}
	fields := ProcessValidationErrors(validationErrors)
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+" failed "+tag)
	}
	sort.Strings(parts)
	return fmt.Errorf("%w: %s", kind, strings.Join(parts, ", "))
}

// field namespace -> failed tag
func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Namespace()] = ve.Tag()
	}
	return errorResponse
}
