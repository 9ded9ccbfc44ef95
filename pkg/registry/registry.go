// Package registry holds the config schema of every known action and trigger type and validates
// step configs against them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidConfig is returned when a step config does not match its component schema.
var ErrInvalidConfig = errors.New("invalid step config")

// ConfigCheck performs validation a JSON schema cannot express.
type ConfigCheck func(config map[string]any) error

type entry struct {
	component *models.RegisteredComponent
	check     ConfigCheck
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	actions  map[string]entry
	triggers map[string]entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		actions:  make(map[string]entry),
		triggers: make(map[string]entry),
	}
}

// Register adds a component. A later registration of the same kind and type replaces it.
func (r *Registry) Register(component *models.RegisteredComponent, check ConfigCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{component: component, check: check}

	switch component.Kind {
	case models.ComponentKindAction:
		r.actions[component.Type] = e
	case models.ComponentKindTrigger:
		r.triggers[component.Type] = e
	}

	r.logger.Debug("Registered component", "kind", component.Kind, "type", component.Type)
}

// Component returns the registered component of the given kind and type.
func (r *Registry) Component(kind models.ComponentKind, componentType string) (*models.RegisteredComponent, bool) {
	e, ok := r.lookup(kind, componentType)

	return e.component, ok
}

// Components returns every registered component ordered by kind and type.
func (r *Registry) Components() []*models.RegisteredComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]*models.RegisteredComponent, 0, len(r.actions)+len(r.triggers))

	for _, key := range slices.Sorted(maps.Keys(r.actions)) {
		components = append(components, r.actions[key].component)
	}

	for _, key := range slices.Sorted(maps.Keys(r.triggers)) {
		components = append(components, r.triggers[key].component)
	}

	return components
}

func (r *Registry) lookup(kind models.ComponentKind, componentType string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		e  entry
		ok bool
	)

	switch kind {
	case models.ComponentKindAction:
		e, ok = r.actions[componentType]
	case models.ComponentKindTrigger:
		e, ok = r.triggers[componentType]
	}

	return e, ok
}

// ValidateStep validates the config of an action or trigger step. Steps of unregistered
// types have no schema and always pass.
func (r *Registry) ValidateStep(step *models.WorkflowStep) error {
	var (
		kind          models.ComponentKind
		componentType string
	)

	switch step.Type {
	case models.StepTypeAction:
		kind, componentType = models.ComponentKindAction, step.ActionType
	case models.StepTypeTrigger:
		kind, componentType = models.ComponentKindTrigger, step.TriggerType
	default:
		return nil
	}

	e, ok := r.lookup(kind, componentType)
	if !ok {
		return nil
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}

	err := validateJSONSchema(config, e.component.Schema)
	if err == nil && e.check != nil {
		err = e.check(config)
	}

	if err != nil {
		return fmt.Errorf("%w: step %s (%s %s): %w", ErrInvalidConfig, step.ID, kind, componentType, err)
	}

	return nil
}

// ValidateSteps validates every step, including the branches of condition steps, and reports
// all failures at once.
func (r *Registry) ValidateSteps(steps []*models.WorkflowStep) error {
	var errs []error

	for _, step := range steps {
		err := r.ValidateStep(step)
		if err != nil {
			errs = append(errs, err)
		}

		if step.Type == models.StepTypeCondition {
			errs = append(errs, r.ValidateSteps(step.TrueSteps), r.ValidateSteps(step.FalseSteps))
		}
	}

	return errors.Join(errs...)
}

func validateJSONSchema(data map[string]any, schema *models.JSONSchema) error {
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
