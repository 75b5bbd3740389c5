package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so clients can map issues back
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateStruct validates v against its struct tags and converts failures
// into a VALIDATION_ERROR
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	issues := formatValidationErrors(err)
	if len(issues) == 0 {
		return err
	}

	return &ValidationError{
		Code:    CodeValidationError,
		Message: "Validation failed",
		Details: issues,
	}
}

// formatValidationErrors converts validator errors to a readable format
func formatValidationErrors(err error) []FieldIssue {
	var issues []FieldIssue

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			issues = append(issues, FieldIssue{
				Field:   e.Field(),
				Message: getErrorMessage(e),
			})
		}
	}

	return issues
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "url":
		return "Invalid URL"
	case "min":
		if e.Kind() == reflect.String {
			return "Must not be empty"
		}
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	default:
		return "Invalid value"
	}
}
