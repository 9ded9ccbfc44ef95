package workflow

import "errors"

var (
	// ErrWorkflowNotActive is returned when starting a run of a workflow that triggers may not run.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrRunFinished is returned when changing a run that already completed or failed.
	ErrRunFinished = errors.New("run already finished")

	// ErrRunNotAwaitingApproval is returned when resuming a run that is not suspended at an approval.
	ErrRunNotAwaitingApproval = errors.New("run is not awaiting approval")

	// ErrInvalidDecision is returned when resuming with a status that does not resolve an approval.
	ErrInvalidDecision = errors.New("invalid approval decision")

	// ErrInvalidFailurePolicy is returned for failure policies other than halt and continue.
	ErrInvalidFailurePolicy = errors.New("invalid failure policy")

	// ErrCorruptCursor is returned when a persisted cursor no longer addresses the run's steps.
	ErrCorruptCursor = errors.New("run cursor does not match run steps")
)
