package league

import (
	"fmt"
)

// ValidationError reports malformed input or a malformed record. It is never
// fatal: callers surface Reason next to the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// FetchError wraps a failed read the caller may retry.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string   { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error   { return e.Err }
func (e *FetchError) Retryable() bool { return true }

type DuplicatePredictionError struct {
	UserID  string
	MatchID string
}

func (e *DuplicatePredictionError) Error() string {
	return fmt.Sprintf("user %s already predicted match %s", e.UserID, e.MatchID)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
