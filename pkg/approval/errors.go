package approval

import "errors"

var (
	// ErrNotAuthenticated is returned when a decision is submitted without an acting user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidAction is returned for decisions other than approve and reject.
	ErrInvalidAction = errors.New("invalid approval action")

	// ErrApproverNotAllowed is returned when the actor's role is not one of the step's approver roles.
	ErrApproverNotAllowed = errors.New("approver role not allowed")

	// ErrAlreadyVoted is returned when an approver submits a second decision for the same approval.
	ErrAlreadyVoted = errors.New("approver already submitted a decision")

	// ErrApprovalResolved is returned for decisions submitted after the approval was resolved.
	ErrApprovalResolved = errors.New("approval already resolved")

	// ErrResumeFailed is returned with the resolved approval when a listener could not act on the
	// resolution. The decision is stored; the run can be resumed again later.
	ErrResumeFailed = errors.New("approval resolved but the run could not be resumed")

	// ErrInvalidStep is returned when an approval is initiated for a step that cannot be approved.
	ErrInvalidStep = errors.New("invalid approval step")
)

// IsForbidden reports whether the error means the actor may not vote on the approval.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrApproverNotAllowed)
}

// IsConflict reports whether the error means the vote conflicts with the approval's current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyVoted) || errors.Is(err, ErrApprovalResolved)
}
