package completion

import (
	"errors"
	"strings"
)

// Precondition sentinels. Operations return them wrapped in a
// *PreconditionError, so both errors.Is and errors.As work.
var (
	ErrGroupNotFound    = errors.New("group not found")
	ErrNotGroupAdmin    = errors.New("only the group admin can do this")
	ErrNotReviewer      = errors.New("only a reviewer can do this")
	ErrAlreadyInitiated = errors.New("completion has already been initiated for this group")
	ErrNotInitiated     = errors.New("completion has not been initiated for this group")
	ErrTerminal         = errors.New("completion is already finished")
	ErrWrongPhase       = errors.New("completion request is not in the required phase")
	ErrNotApproved      = errors.New("completion has not been approved by a reviewer")
	ErrSoloProject      = errors.New("group has no members to evaluate; use solo completion")
	ErrNotSolo          = errors.New("group has members to evaluate; solo completion is not allowed")
	ErrReasonRequired   = errors.New("a rejection reason is required")
	ErrStateChanged     = errors.New("completion request changed while the operation was running")
)

// ErrIncompleteFinalize is returned with a Summary when some step of
// finalization failed after earlier steps were written. Calling the
// operation again resumes it.
var ErrIncompleteFinalize = errors.New("finalization did not complete; retry to resume")

// PreconditionError reports why an operation was refused. Nothing was
// written when it is returned.
type PreconditionError struct {
	Op         string   `json:"op"`
	Violations []string `json:"violations"`
	err        error
}

func (e *PreconditionError) Error() string {
	return e.Op + ": " + strings.Join(e.Violations, "; ")
}

func (e *PreconditionError) Unwrap() error { return e.err }

func refuse(op string, sentinel error, details ...string) error {
	v := append([]string{sentinel.Error()}, details...)
	return &PreconditionError{Op: op, Violations: v, err: sentinel}
}

// Refused builds the error an operation returns when sentinel blocks it.
func Refused(op string, sentinel error, details ...string) error {
	return refuse(op, sentinel, details...)
}
