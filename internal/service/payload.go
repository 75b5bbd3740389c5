package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"species-catalog/internal/domain"
)

// decodeObject parses raw as a JSON object. A syntactically valid body that
// is not an object yields a nil map and no error.
func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, errors.New("malformed JSON")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, nil
		}
		return nil, err
	}

	return fields, nil
}

// checkOwnershipKeys rejects payloads carrying any ownership attribution,
// whatever its value
func checkOwnershipKeys(fields map[string]json.RawMessage) *ValidationError {
	for _, key := range domain.OwnershipKeys {
		if _, ok := fields[key]; ok {
			return invalid(CodeUserIDNotAllowed, "User ID cannot be provided in request body")
		}
	}
	return nil
}

// typeError turns a json decoding failure into a field-level issue
func typeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &ValidationError{
			Code:    CodeValidationError,
			Message: "Validation failed",
			Details: []FieldIssue{{
				Field:   field,
				Message: fmt.Sprintf("Expected %s, received %s", typeErr.Type, typeErr.Value),
			}},
		}
	}
	return invalid(CodeInvalidBody, "Invalid JSON body")
}

// decodePayload runs the checks shared by create and update bodies: the body
// must be a JSON object without ownership keys. id, createdAt and updatedAt
// have no counterpart in the target types and are dropped.
func decodePayload(body []byte, v interface{}) error {
	fields, err := decodeObject(body)
	if err != nil {
		return invalid(CodeInvalidBody, "Invalid JSON body")
	}
	if fields == nil {
		return invalid(CodeInvalidBody, "Request body must be a JSON object")
	}
	if verr := checkOwnershipKeys(fields); verr != nil {
		return verr
	}

	if err := json.Unmarshal(body, v); err != nil {
		return typeError(err)
	}
	return nil
}

// DecodeInput parses a create request body
func DecodeInput(body []byte) (*domain.SpeciesInput, error) {
	var in domain.SpeciesInput
	if err := decodePayload(body, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodePatch parses an update request body
func DecodePatch(body []byte) (*domain.SpeciesPatch, error) {
	var patch domain.SpeciesPatch
	if err := decodePayload(body, &patch); err != nil {
		return nil, err
	}
	return &patch, nil
}

// DecodeBulkRequest extracts the items array of a bulk request body and
// checks its size. Items themselves are validated by BulkCreate.
func DecodeBulkRequest(body []byte) ([]json.RawMessage, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return nil, invalid(CodeInvalidBody, "Invalid JSON body")
	}

	missing := invalid(CodeMissingItemsArray, "Request body must include 'items' array")

	raw, ok := fields["items"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, missing
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, missing
	}

	if err := checkBatchSize(len(items)); err != nil {
		return nil, err
	}

	return items, nil
}

func checkBatchSize(n int) error {
	if n == 0 {
		return invalid(CodeEmptyItemsArray, "Items array cannot be empty")
	}
	if n > MaxBulkItems {
		return invalid(CodeTooManyItems, "Maximum %d items allowed per request", MaxBulkItems)
	}
	return nil
}

// decodeBulkItem parses one bulk item. Failures are reported without the
// item position, the caller adds it.
func decodeBulkItem(raw json.RawMessage) (*domain.SpeciesInput, *ValidationError) {
	fields, err := decodeObject(raw)
	if err != nil || fields == nil {
		return nil, invalid(CodeInvalidItem, "item must be a JSON object")
	}
	if verr := checkOwnershipKeys(fields); verr != nil {
		return nil, verr
	}

	var in domain.SpeciesInput
	if err := json.Unmarshal(raw, &in); err != nil {
		// a category of the wrong type is reported as an invalid category
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "category" {
			return nil, invalidBulkCategory()
		}
		verr := typeError(err)
		verr.Code = CodeInvalidItem
		verr.Message = "item has a field of the wrong type"
		return nil, verr
	}

	return &in, nil
}
