// Package editor provides in-memory editing of a workflow's ordered step list.
package editor

import (
	"slices"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

// Direction is the direction MoveStep moves a step in.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// IDGenerator produces unique step ids.
type IDGenerator func() string

// Option configures an Editor.
type Option func(*Editor)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(generator IDGenerator) Option {
	return func(e *Editor) {
		e.newID = generator
	}
}

// Editor edits one step list. Editors returned by Branch share the lock of the editor they
// were created from, so the whole tree has a single writer at a time.
type Editor struct {
	mu    *sync.Mutex
	newID IDGenerator
	// get reports false once the list no longer exists, as for a branch whose condition
	// step was removed.
	get func() ([]*models.WorkflowStep, bool)
	set func([]*models.WorkflowStep)
}

// New creates an editor over a copy of steps.
func New(steps []*models.WorkflowStep, opts ...Option) *Editor {
	list := models.CloneSteps(steps)
	if list == nil {
		list = []*models.WorkflowStep{}
	}

	e := &Editor{
		mu:    &sync.Mutex{},
		newID: uuid.NewString,
		get:   func() ([]*models.WorkflowStep, bool) { return list, true },
		set:   func(steps []*models.WorkflowStep) { list = steps },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Steps returns a copy of the current step list.
func (e *Editor) Steps() []*models.WorkflowStep {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, _ := e.get()

	steps := models.CloneSteps(current)
	if steps == nil {
		return []*models.WorkflowStep{}
	}

	return steps
}

// AddStep inserts a new step of the given type right after the step with id afterID and
// returns a copy of it. It returns nil and changes nothing when afterID is not in the list
// or the type is unknown.
func (e *Editor) AddStep(afterID string, stepType models.StepType) *models.WorkflowStep {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps, ok := e.get()
	if !ok {
		return nil
	}

	idx := indexOf(steps, afterID)
	if idx < 0 {
		return nil
	}

	step := e.newStep(stepType)
	if step == nil {
		return nil
	}

	e.set(slices.Insert(steps, idx+1, step))

	return step.Clone()
}

// AddFirst inserts a new step of the given type at the head of the list. It is how an empty
// list or branch gets its first step. It returns nil when the list no longer exists.
func (e *Editor) AddFirst(stepType models.StepType) *models.WorkflowStep {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps, ok := e.get()
	if !ok {
		return nil
	}

	step := e.newStep(stepType)
	if step == nil {
		return nil
	}

	e.set(slices.Insert(steps, 0, step))

	return step.Clone()
}

// RemoveStep deletes the step with the given id. Unknown ids are ignored.
func (e *Editor) RemoveStep(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps, _ := e.get()

	idx := indexOf(steps, id)
	if idx < 0 {
		return
	}

	e.set(slices.Delete(steps, idx, idx+1))
}

// UpdateStep merges the patch into the step with the given id, keeping its type.
// It reports whether the step was found.
func (e *Editor) UpdateStep(id string, patch models.StepPatch) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps, _ := e.get()

	idx := indexOf(steps, id)
	if idx < 0 {
		return false
	}

	patch.Apply(steps[idx])

	return true
}

// MoveStep swaps the step with its neighbour in the given direction. Moving the first step up
// or the last step down leaves the list unchanged.
func (e *Editor) MoveStep(id string, direction Direction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps, _ := e.get()

	idx := indexOf(steps, id)
	if idx < 0 {
		return
	}

	target := idx

	switch direction {
	case DirectionUp:
		target--
	case DirectionDown:
		target++
	default:
		return
	}

	if target < 0 || target >= len(steps) {
		return
	}

	steps[idx], steps[target] = steps[target], steps[idx]
}

// ResetSteps empties the list.
func (e *Editor) ResetSteps() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.set([]*models.WorkflowStep{})
}

// SetWorkflowSteps replaces the whole list with a copy of steps.
func (e *Editor) SetWorkflowSteps(steps []*models.WorkflowStep) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := models.CloneSteps(steps)
	if list == nil {
		list = []*models.WorkflowStep{}
	}

	e.set(list)
}

// Branch returns an editor over one branch of the condition step with the given id.
// It returns nil when no condition step with that id exists in this list.
func (e *Editor) Branch(conditionID string, branch models.Branch) *Editor {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, _ := e.get()

	idx := indexOf(current, conditionID)
	if idx < 0 || current[idx].Type != models.StepTypeCondition {
		return nil
	}

	lookup := func() *models.WorkflowStep {
		steps, ok := e.get()
		if !ok {
			return nil
		}

		if i := indexOf(steps, conditionID); i >= 0 {
			return steps[i]
		}

		return nil
	}

	return &Editor{
		mu:    e.mu,
		newID: e.newID,
		get: func() ([]*models.WorkflowStep, bool) {
			if step := lookup(); step != nil {
				return step.BranchSteps(branch), true
			}

			return nil, false
		},
		set: func(steps []*models.WorkflowStep) {
			if step := lookup(); step != nil {
				step.SetBranchSteps(branch, steps)
			}
		},
	}
}

func (e *Editor) newStep(stepType models.StepType) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:   e.newID(),
		Type: stepType,
	}

	switch stepType {
	case models.StepTypeAction:
		step.Name = "New Action"
		step.Config = map[string]any{}
	case models.StepTypeCondition:
		step.Name = "New Condition"
		step.ConditionType = models.ConditionEquals
		step.Config = map[string]any{}
		step.TrueSteps = []*models.WorkflowStep{}
		step.FalseSteps = []*models.WorkflowStep{}
	case models.StepTypeTrigger:
		step.Name = "New Trigger"
		step.Config = map[string]any{}
	case models.StepTypeApproval:
		step.Name = "New Approval"
		step.RequiredApprovals = 1
		step.ApproverRoles = []string{}
		step.Approvals = []models.ApprovalRecord{}
	default:
		return nil
	}

	return step
}

func indexOf(steps []*models.WorkflowStep, id string) int {
	return slices.IndexFunc(steps, func(step *models.WorkflowStep) bool {
		return step.ID == id
	})
}
