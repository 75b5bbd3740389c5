package service

import "fmt"

// Machine readable validation codes returned to clients
const (
	CodeInvalidParameters     = "INVALID_PARAMETERS"
	CodeInvalidID             = "INVALID_ID"
	CodeInvalidBody           = "INVALID_BODY"
	CodeUserIDNotAllowed      = "USER_ID_NOT_ALLOWED"
	CodeMissingRequiredField  = "MISSING_REQUIRED_FIELD"
	CodeInvalidCategory       = "INVALID_CATEGORY"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeMissingItemsArray     = "MISSING_ITEMS_ARRAY"
	CodeEmptyItemsArray       = "EMPTY_ITEMS_ARRAY"
	CodeTooManyItems          = "TOO_MANY_ITEMS"
	CodeInvalidItem           = "INVALID_ITEM"
	CodeMissingCategory       = "MISSING_CATEGORY"
	CodeMissingCommonName     = "MISSING_COMMON_NAME"
	CodeMissingScientificName = "MISSING_SCIENTIFIC_NAME"
	CodeMissingFamily         = "MISSING_FAMILY"
)

// FieldIssue describes one field that failed schema validation
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for any client input problem. It is always
// raised before the store is touched.
type ValidationError struct {
	Code    string
	Message string
	Details []FieldIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// atItem prefixes the message with the 1-based bulk item position
func atItem(index int, err *ValidationError) *ValidationError {
	return &ValidationError{
		Code:    err.Code,
		Message: fmt.Sprintf("Item %d: %s", index+1, err.Message),
		Details: err.Details,
	}
}
