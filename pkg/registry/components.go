package registry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/robfig/cron/v3"
)

func minLength(n int) *int {
	return &n
}

// NewDefaultRegistry returns a registry holding the built-in action and trigger types.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(EmailActionComponent(), nil)
	r.Register(NotificationActionComponent(), nil)
	r.Register(TaskActionComponent(), nil)
	r.Register(ScheduleTriggerComponent(), CheckScheduleConfig)
	r.Register(ManualTriggerComponent(), nil)

	return r
}

func EmailActionComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Kind:        models.ComponentKindAction,
		Type:        models.ActionTypeEmail,
		Name:        "Send email",
		Description: "Sends an email through the configured email service",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"to":          {Type: "string", Description: "Recipient address", MinLength: minLength(1)},
				"subject":     {Type: "string", Description: "Subject line"},
				"body":        {Type: "string", Description: "Message body"},
				"template_id": {Type: "string", Description: "Template used by the email service"},
			},
			Required: []string{"to"},
		},
	}
}

func NotificationActionComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Kind:        models.ComponentKindAction,
		Type:        models.ActionTypeNotification,
		Name:        "Send notification",
		Description: "Shows a notification to the users of the community",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"type": {
					Type:    "string",
					Enum:    []any{"info", "success", "warning", "error"},
					Default: "info",
				},
				"title":   {Type: "string", MinLength: minLength(1)},
				"message": {Type: "string"},
			},
			Required: []string{"title"},
		},
	}
}

func TaskActionComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Kind:        models.ComponentKindAction,
		Type:        models.ActionTypeTask,
		Name:        "Create task",
		Description: "Creates a task assigned to a person",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"title":       {Type: "string", MinLength: minLength(1)},
				"assigned_to": {Type: "string"},
				"description": {Type: "string"},
				"due_date":    {Type: "string", Format: "date"},
			},
			Required: []string{"title"},
		},
	}
}

func ScheduleTriggerComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Kind:        models.ComponentKindTrigger,
		Type:        models.TriggerTypeSchedule,
		Name:        "Schedule",
		Description: "Starts a run on a cron schedule",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"cron":     {Type: "string", Description: "Standard five field cron expression", MinLength: minLength(1)},
				"timezone": {Type: "string", Description: "IANA time zone, UTC when empty"},
			},
			Required: []string{"cron"},
		},
	}
}

func ManualTriggerComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Kind:        models.ComponentKindTrigger,
		Type:        models.TriggerTypeManual,
		Name:        "Manual",
		Description: "Starts a run on request",
		Schema:      &models.JSONSchema{Type: "object"},
	}
}

// CheckScheduleConfig parses the cron expression and time zone of a schedule trigger.
func CheckScheduleConfig(config map[string]any) error {
	schedule := models.ScheduleTriggerConfigFrom(config)

	_, err := cron.ParseStandard(schedule.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.Cron, err)
	}

	if schedule.Timezone != "" {
		_, err = time.LoadLocation(schedule.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", schedule.Timezone, err)
		}
	}

	return nil
}
