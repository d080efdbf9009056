package normalize

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes row-level validation failures.
type ErrorKind string

const (
	// KindMissingField indicates a required field is empty after cleaning.
	KindMissingField ErrorKind = "MISSING_FIELD"

	// KindUnknownStatus indicates the status text is not in the vocabulary.
	KindUnknownStatus ErrorKind = "UNKNOWN_STATUS"
)

// RowError is a ValidationFailure for one raw row. The row is quarantined
// and the run continues.
type RowError struct {
	Kind     ErrorKind
	SourceID string
	Field    string
	Message  string
}

func (e *RowError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("%s: %s (source_id=%s, field=%s)", e.Kind, e.Message, e.SourceID, e.Field)
	}
	return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
}

// IsValidationFailure reports whether err is a RowError.
func IsValidationFailure(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// IsUnknownStatus reports whether err is an unmapped status failure.
func IsUnknownStatus(err error) bool {
	var re *RowError
	if errors.As(err, &re) {
		return re.Kind == KindUnknownStatus
	}
	return false
}

func missingField(sourceID, field string) *RowError {
	return &RowError{
		Kind:     KindMissingField,
		SourceID: sourceID,
		Field:    field,
		Message:  "required field is empty",
	}
}

func unknownStatus(sourceID, status string) *RowError {
	return &RowError{
		Kind:     KindUnknownStatus,
		SourceID: sourceID,
		Field:    "status",
		Message:  fmt.Sprintf("status %q is not in the vocabulary", status),
	}
}
