package remote

import (
	"errors"
	"fmt"
	"strings"
)

// The engine distinguishes three remote failure classes. Managers branch on
// them with errors.As: constraint violations feed the dependent-create retry
// path, not-found failures mark stale optimistic state, and everything else is
// treated as transient network trouble.

// NetworkError wraps a transient connectivity or backend failure.
type NetworkError struct {
	Op    string
	Table string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConstraintError wraps a write the backend rejected for a referential
// violation, typically a child record naming a parent that is not yet visible
// server-side.
type ConstraintError struct {
	Op    string
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("remote %s on %s violated a constraint: %v", e.Op, e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// NotFoundError wraps an update or delete whose target record does not exist
// remotely.
type NotFoundError struct {
	Op    string
	Table string
	ID    string
	Err   error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote %s on %s: %s not found", e.Op, e.Table, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a ConstraintError anywhere in its chain.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Substrings SurrealDB uses in errors for missing records and reference
// violations. The RPC layer surfaces failures as strings, so classification is
// textual.
var (
	notFoundMarkers = []string{
		"does not exist",
		"Expected a single or multiple results but got 0",
		"cannot unmarshal array into Go value",
	}
	constraintMarkers = []string{
		"contains a record which does not exist",
		"record reference",
		"field check failed",
		"violates",
	}
)

// classify sorts a raw SDK error into the taxonomy. Reference-violation
// wording becomes ConstraintError, record-existence wording becomes
// NotFoundError, and everything else (timeouts, closed connections, backend
// faults) is a NetworkError.
func classify(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, m := range constraintMarkers {
		if strings.Contains(msg, m) {
			return &ConstraintError{Op: op, Table: table, Err: err}
		}
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(msg, m) {
			return &NotFoundError{Op: op, Table: table, ID: id, Err: err}
		}
	}
	return &NetworkError{Op: op, Table: table, Err: err}
}
