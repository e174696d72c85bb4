package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError through errors.Is.
var ErrValidation = errors.New("reconcile: invalid input")

const validationKind = "ValidationError"

// ValidationError identifies the offending field so callers can highlight it.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("reconcile: %s: %s", e.Field, e.Message)
}

// Kind returns the error class name exposed to API consumers.
func (e ValidationError) Kind() string {
	return validationKind
}

// Is lets errors.Is(err, ErrValidation) succeed.
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MarshalJSON renders the structured {kind, field, message} shape.
func (e ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Field   string `json:"field"`
		Message string `json:"message"`
	}{Kind: validationKind, Field: e.Field, Message: e.Message})
}

// AsValidation extracts a ValidationError from err, if any.
func AsValidation(err error) (ValidationError, bool) {
	var verr ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return ValidationError{}, false
}

func invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}
