package models

import "fmt"

// EmailConfig is the config shape of an email action.
type EmailConfig struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id"`
}

// NotificationConfig is the config shape of a notification action.
type NotificationConfig struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// TaskConfig is the config shape of a task action.
type TaskConfig struct {
	Title       string `json:"title"`
	AssignedTo  string `json:"assigned_to"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// ScheduleTriggerConfig is the config shape of a trigger step with trigger type "schedule".
type ScheduleTriggerConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
}

// Trigger types understood by the built-in trigger sources.
const (
	TriggerTypeSchedule = "schedule"
	TriggerTypeManual   = "manual"
)

// EmailConfigFrom reads an EmailConfig out of an open config map.
func EmailConfigFrom(config map[string]any) EmailConfig {
	return EmailConfig{
		To:         stringValue(config, "to"),
		Subject:    stringValue(config, "subject"),
		Body:       stringValue(config, "body"),
		TemplateID: stringValue(config, "template_id"),
	}
}

// NotificationConfigFrom reads a NotificationConfig out of an open config map.
func NotificationConfigFrom(config map[string]any) NotificationConfig {
	kind := stringValue(config, "type")
	if kind == "" {
		kind = "info"
	}

	return NotificationConfig{
		Type:    kind,
		Title:   stringValue(config, "title"),
		Message: stringValue(config, "message"),
	}
}

// TaskConfigFrom reads a TaskConfig out of an open config map.
func TaskConfigFrom(config map[string]any) TaskConfig {
	return TaskConfig{
		Title:       stringValue(config, "title"),
		AssignedTo:  stringValue(config, "assigned_to"),
		Description: stringValue(config, "description"),
		DueDate:     stringValue(config, "due_date"),
	}
}

// ScheduleTriggerConfigFrom reads a ScheduleTriggerConfig out of an open config map.
func ScheduleTriggerConfigFrom(config map[string]any) ScheduleTriggerConfig {
	return ScheduleTriggerConfig{
		Cron:     stringValue(config, "cron"),
		Timezone: stringValue(config, "timezone"),
	}
}

func stringValue(config map[string]any, key string) string {
	raw, ok := config[key]
	if !ok || raw == nil {
		return ""
	}

	if s, ok := raw.(string); ok {
		return s
	}

	return fmt.Sprint(raw)
}
