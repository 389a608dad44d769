package entity

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Workflow errors
	ErrInvalidModelOutput = errors.New("invalid model output")
	ErrSchemaValidation   = errors.New("schema validation failed")
	ErrEmbedding          = errors.New("embedding failed")
	ErrCancelled          = errors.New("workflow cancelled")
	ErrBackendHTTP        = errors.New("model backend error")

	// Validation errors
	ErrMissingField     = errors.New("required field is missing")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// SchemaValidationError identifies the stage output record that failed validation.
// Index is -1 when the failure concerns the top-level object.
type SchemaValidationError struct {
	Label  string
	Index  int
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s[%d] %s: %s", e.Label, e.Index, e.Reason, e.Field)
	}
	return fmt.Sprintf("%s %s: %s", e.Label, e.Reason, e.Field)
}

func (e *SchemaValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// EmbeddingError reports an unusable embedding response.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding error: %s", e.Reason)
}

func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
