package models

// FailurePolicy decides what a run does after a failed step.
type FailurePolicy string

const (
	FailurePolicyHalt     FailurePolicy = "halt"
	FailurePolicyContinue FailurePolicy = "continue"
)

// RunFrame is a position in one step list of the run snapshot. Path addresses the list:
// empty for the top level, otherwise pairs of condition step id and branch.
type RunFrame struct {
	Path  []BranchRef `json:"path"`
	Index int         `json:"index"`
}

// BranchRef selects the branch of a condition step.
type BranchRef struct {
	StepID string `json:"step_id"`
	Branch Branch `json:"branch"`
}

// WorkflowRun is the persisted state of a run: its log plus what is needed to resume it.
type WorkflowRun struct {
	Log           WorkflowExecutionLog `json:"log"`
	WorkflowName  string               `json:"workflow_name"`
	Steps         []*WorkflowStep      `json:"steps"`
	Cursor        []RunFrame           `json:"cursor"`
	FailurePolicy FailurePolicy        `json:"failure_policy"`
	TriggerData   map[string]any       `json:"trigger_data,omitempty"`
	Variables     map[string]any       `json:"variables,omitempty"`
}

// ID returns the run id.
func (r *WorkflowRun) ID() string {
	return r.Log.ID
}
