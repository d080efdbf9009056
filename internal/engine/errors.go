package engine

import (
	"errors"
	"fmt"
)

// ConsistencyError is a HistorizationConsistencyViolation: prior state or
// run input breaks an SCD2 invariant. It is never recovered internally;
// the run aborts before commit and the state needs manual inspection.
type ConsistencyError struct {
	// Code identifies the violation.
	Code ConsistencyCode

	// Message is a human-readable description.
	Message string

	// EntityID identifies the affected entity, when there is one.
	EntityID string

	// Details contains additional context.
	Details map[string]string
}

// ConsistencyCode categorizes consistency violations.
type ConsistencyCode string

const (
	// ErrCodeDuplicateCurrent indicates two open versions for one entity.
	ErrCodeDuplicateCurrent ConsistencyCode = "DUPLICATE_CURRENT"

	// ErrCodeClosedInCurrent indicates a closed version in the current table.
	ErrCodeClosedInCurrent ConsistencyCode = "CLOSED_IN_CURRENT"

	// ErrCodeDoubleClose indicates an attempt to close an already-closed version.
	ErrCodeDoubleClose ConsistencyCode = "DOUBLE_CLOSE"

	// ErrCodeDuplicateEntity indicates one entity twice in a snapshot.
	ErrCodeDuplicateEntity ConsistencyCode = "DUPLICATE_ENTITY"

	// ErrCodeNonMonotonicRun indicates the run timestamp does not follow
	// the version it would close or the latest applied run.
	ErrCodeNonMonotonicRun ConsistencyCode = "NON_MONOTONIC_RUN"

	// ErrCodeInvalidRecord indicates a record missing its identity or hash.
	ErrCodeInvalidRecord ConsistencyCode = "INVALID_RECORD"

	// ErrCodeOverlap indicates two versions of one entity whose validity
	// intervals overlap, or an open version that is not the latest.
	ErrCodeOverlap ConsistencyCode = "OVERLAPPING_VERSIONS"

	// ErrCodeReplayMismatch indicates a replayed run timestamp whose
	// snapshot no longer matches what was committed under it.
	ErrCodeReplayMismatch ConsistencyCode = "REPLAY_MISMATCH"
)

// ErrRunAlreadyApplied is returned when a plan for a run timestamp that
// has already been committed is committed again. Nothing is written.
var ErrRunAlreadyApplied = errors.New("run already applied")

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConsistencyViolation reports whether err is a ConsistencyError.
// Uses errors.As to handle wrapped errors.
func IsConsistencyViolation(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// ConsistencyCodeOf returns the violation code of err, or "" if err is not
// a ConsistencyError.
func ConsistencyCodeOf(err error) ConsistencyCode {
	var ce *ConsistencyError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// NewDoubleCloseError reports an attempt to close a version that is no
// longer open.
func NewDoubleCloseError(entityID string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeDoubleClose,
		Message:  "version to close is not open",
		EntityID: entityID,
	}
}

func newDuplicateCurrentError(entityID string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeDuplicateCurrent,
		Message:  "entity has more than one current version",
		EntityID: entityID,
	}
}

func newClosedInCurrentError(entityID string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeClosedInCurrent,
		Message:  "current-version table contains a closed version",
		EntityID: entityID,
	}
}

func newDuplicateEntityError(entityID string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeDuplicateEntity,
		Message:  "entity appears more than once in the snapshot",
		EntityID: entityID,
	}
}

func newNonMonotonicError(entityID string, validFrom, runAt string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeNonMonotonicRun,
		Message:  "run timestamp must be after the valid_from of the version it closes",
		EntityID: entityID,
		Details: map[string]string{
			"valid_from": validFrom,
			"run_at":     runAt,
		},
	}
}

// NewReplayMismatchError reports a replay of runAt whose plan would still
// change history.
func NewReplayMismatchError(runAt string, c Counts) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeReplayMismatch,
		Message: "run already applied with a different snapshot",
		Details: map[string]string{
			"run_at":   runAt,
			"inserts":  fmt.Sprint(c.Inserts),
			"updates":  fmt.Sprint(c.Updates),
			"closures": fmt.Sprint(c.Closures),
		},
	}
}

// NewRunOrderError reports a run older than the latest applied run.
// Timestamps are passed pre-formatted so every backend reports them the
// way it stores them.
func NewRunOrderError(runAt, latest string) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeNonMonotonicRun,
		Message: "run timestamp precedes the latest committed run",
		Details: map[string]string{"run_at": runAt, "latest": latest},
	}
}

func newOverlapError(entityID, message string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeOverlap,
		Message:  message,
		EntityID: entityID,
	}
}

func newInvalidRecordError(entityID, message string) *ConsistencyError {
	return &ConsistencyError{
		Code:     ErrCodeInvalidRecord,
		Message:  message,
		EntityID: entityID,
	}
}
