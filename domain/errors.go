package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound means the principal has no account document; the
	// caller must terminate the session.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotApproved means the admin-level gate is not (or no longer) open.
	ErrNotApproved = errors.New("account not approved")

	// ErrInvalidCode means no manager owns the submitted manager code.
	ErrInvalidCode = errors.New("invalid manager code")

	// ErrNotAuthorized means the role lacks permission for the attempted
	// mutation.
	ErrNotAuthorized = errors.New("not authorized")
)

// PartialLinkError reports a linkage transition that updated one side but
// failed on the other. State is left inconsistent; there is no rollback and
// the caller may retry. These are logged distinctly for manual reconciliation.
type PartialLinkError struct {
	Op        string
	ManagerID string
	ClientID  string
	Err       error
}

func (e *PartialLinkError) Error() string {
	return fmt.Sprintf("partial link failure during %s (manager=%s client=%s): %v", e.Op, e.ManagerID, e.ClientID, e.Err)
}

func (e *PartialLinkError) Unwrap() error { return e.Err }

// ReconcileRecord describes a linkage write that left the two sides of a
// link inconsistent. Records are queued for the reconcile worker.
type ReconcileRecord struct {
	Op        string    `json:"op"`
	ManagerID string    `json:"managerId"`
	ClientID  string    `json:"clientId"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}

// ValidationError reports a missing or malformed field on user input or on
// the output of the task extraction collaborator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
