package models

import (
	"maps"
	"slices"
)

// StepType discriminates the WorkflowStep union.
type StepType string

const (
	StepTypeTrigger   StepType = "trigger"
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeApproval  StepType = "approval"
)

// Built-in action types. Any other value is executed as a generic action.
const (
	ActionTypeEmail        = "email"
	ActionTypeNotification = "notification"
	ActionTypeTask         = "task"
)

// ConditionType is the comparator a condition step applies to its field and value.
type ConditionType string

const (
	ConditionEquals      ConditionType = "equals"
	ConditionNotEquals   ConditionType = "notEquals"
	ConditionContains    ConditionType = "contains"
	ConditionGreaterThan ConditionType = "greaterThan"
	ConditionLessThan    ConditionType = "lessThan"
	ConditionIsTrue      ConditionType = "isTrue"
	ConditionIsFalse     ConditionType = "isFalse"
)

// Branch names one of the two step lists of a condition step.
type Branch string

const (
	BranchTrue  Branch = "true"
	BranchFalse Branch = "false"
)

// WorkflowStep is one unit of a workflow. Which fields are meaningful depends on Type:
//
//   - trigger: TriggerType, Config
//   - action: ActionType, Config
//   - condition: ConditionType, Field, Value, TrueSteps, FalseSteps
//   - approval: RequiredApprovals, ApproverRoles, Approvals
type WorkflowStep struct {
	ID   string   `json:"id"   validate:"required"`
	Name string   `json:"name"`
	Type StepType `json:"type" validate:"required,oneof=trigger action condition approval"`

	TriggerType string         `json:"trigger_type,omitempty"`
	ActionType  string         `json:"action_type,omitempty"`
	Config      map[string]any `json:"config,omitempty"`

	ConditionType ConditionType   `json:"condition_type,omitempty"`
	Field         string          `json:"field,omitempty"`
	Value         string          `json:"value,omitempty"`
	TrueSteps     []*WorkflowStep `json:"true_steps,omitempty"  validate:"dive"`
	FalseSteps    []*WorkflowStep `json:"false_steps,omitempty" validate:"dive"`

	RequiredApprovals int              `json:"required_approvals,omitempty" validate:"min=0"`
	ApproverRoles     []string         `json:"approver_roles,omitempty"`
	Approvals         []ApprovalRecord `json:"approvals,omitempty"`
}

// BranchSteps returns the step list of the given branch.
func (s *WorkflowStep) BranchSteps(branch Branch) []*WorkflowStep {
	if branch == BranchTrue {
		return s.TrueSteps
	}

	return s.FalseSteps
}

// SetBranchSteps replaces the step list of the given branch.
func (s *WorkflowStep) SetBranchSteps(branch Branch, steps []*WorkflowStep) {
	if branch == BranchTrue {
		s.TrueSteps = steps
	} else {
		s.FalseSteps = steps
	}
}

// Clone returns a deep copy of the step, including nested branches.
func (s *WorkflowStep) Clone() *WorkflowStep {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Config = cloneMap(s.Config)
	clone.TrueSteps = CloneSteps(s.TrueSteps)
	clone.FalseSteps = CloneSteps(s.FalseSteps)
	clone.ApproverRoles = slices.Clone(s.ApproverRoles)
	clone.Approvals = slices.Clone(s.Approvals)

	return &clone
}

// CloneSteps deep copies a step list.
func CloneSteps(steps []*WorkflowStep) []*WorkflowStep {
	if steps == nil {
		return nil
	}

	cloned := make([]*WorkflowStep, len(steps))
	for i, step := range steps {
		cloned[i] = step.Clone()
	}

	return cloned
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	cloned := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			cloned[k] = cloneMap(nested)

			continue
		}

		cloned[k] = v
	}

	return cloned
}

// StepPatch carries the fields of a partial step update. Nil fields are left untouched.
// The step type is not part of the patch and can never change.
type StepPatch struct {
	Name              *string         `json:"name,omitempty"`
	TriggerType       *string         `json:"trigger_type,omitempty"`
	ActionType        *string         `json:"action_type,omitempty"`
	Config            map[string]any  `json:"config,omitempty"`
	ConditionType     *ConditionType  `json:"condition_type,omitempty"`
	Field             *string         `json:"field,omitempty"`
	Value             *string         `json:"value,omitempty"`
	TrueSteps         []*WorkflowStep `json:"true_steps,omitempty"`
	FalseSteps        []*WorkflowStep `json:"false_steps,omitempty"`
	RequiredApprovals *int            `json:"required_approvals,omitempty" validate:"omitempty,min=1"`
	ApproverRoles     []string        `json:"approver_roles,omitempty"`
}

// Apply merges the patch into the step. Condition fields only apply to condition steps and
// approval fields only to approval steps. Branches are copied, so later changes to the patch
// do not reach the step.
func (p StepPatch) Apply(step *WorkflowStep) {
	if p.Name != nil {
		step.Name = *p.Name
	}

	if p.TriggerType != nil {
		step.TriggerType = *p.TriggerType
	}

	if p.ActionType != nil {
		step.ActionType = *p.ActionType
	}

	if p.Config != nil {
		step.Config = maps.Clone(p.Config)
	}

	switch step.Type {
	case StepTypeCondition:
		if p.ConditionType != nil {
			step.ConditionType = *p.ConditionType
		}

		if p.Field != nil {
			step.Field = *p.Field
		}

		if p.Value != nil {
			step.Value = *p.Value
		}

		if p.TrueSteps != nil {
			step.TrueSteps = CloneSteps(p.TrueSteps)
		}

		if p.FalseSteps != nil {
			step.FalseSteps = CloneSteps(p.FalseSteps)
		}

	case StepTypeApproval:
		if p.RequiredApprovals != nil {
			step.RequiredApprovals = *p.RequiredApprovals
		}

		if p.ApproverRoles != nil {
			step.ApproverRoles = slices.Clone(p.ApproverRoles)
		}
	}
}
