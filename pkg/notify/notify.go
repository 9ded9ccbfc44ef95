// Package notify defines the collaborators steps delegate side effects to, with an
// event-bus implementation for delivery workers and a log implementation for development.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
)

// ErrNoRecipient is returned when an email has no recipient.
var ErrNoRecipient = errors.New("email recipient is required")

// Notifier delivers fire-and-forget alerts.
type Notifier interface {
	Notify(ctx context.Context, kind, title, message string) error
}

// EmailSender delivers emails.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// TaskCreator creates tasks for people.
type TaskCreator interface {
	CreateTask(ctx context.Context, title, assignedTo string, details map[string]any) error
}

// Bus hands every side effect to delivery workers by publishing a request event.
type Bus struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewBus creates collaborators publishing on the given event bus.
func NewBus(publisher eventbus.EventPublisher, logger *slog.Logger) *Bus {
	return &Bus{
		publisher: publisher,
		logger:    logger.With("module", "notify_bus"),
	}
}

func (b *Bus) Notify(ctx context.Context, kind, title, message string) error {
	event := events.NotificationRequested{
		BaseEvent: events.NewBaseEvent(events.NotificationRequestedEvent, ""),
		Kind:      kind,
		Title:     title,
		Message:   message,
	}

	err := b.publisher.Publish(ctx, event.ID, event)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	b.logger.DebugContext(ctx, "Notification requested", "kind", kind, "title", title)

	return nil
}

func (b *Bus) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}

	event := events.EmailRequested{
		BaseEvent: events.NewBaseEvent(events.EmailRequestedEvent, ""),
		To:        to,
		Subject:   subject,
		Body:      body,
	}

	err := b.publisher.Publish(ctx, to, event)
	if err != nil {
		return fmt.Errorf("failed to publish email request: %w", err)
	}

	b.logger.DebugContext(ctx, "Email requested", "to", to, "subject", subject)

	return nil
}

func (b *Bus) CreateTask(ctx context.Context, title, assignedTo string, details map[string]any) error {
	event := events.TaskRequested{
		BaseEvent:  events.NewBaseEvent(events.TaskRequestedEvent, ""),
		Title:      title,
		AssignedTo: assignedTo,
		Details:    details,
	}

	err := b.publisher.Publish(ctx, event.ID, event)
	if err != nil {
		return fmt.Errorf("failed to publish task request: %w", err)
	}

	return nil
}

// Log writes side effects to the logger instead of delivering them.
type Log struct {
	logger *slog.Logger
}

// NewLog creates collaborators that only log.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("module", "notify_log")}
}

func (l *Log) Notify(ctx context.Context, kind, title, message string) error {
	l.logger.InfoContext(ctx, "Notification", "kind", kind, "title", title, "message", message)

	return nil
}

func (l *Log) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}

	l.logger.InfoContext(ctx, "Email", "to", to, "subject", subject, "body_length", len(body))

	return nil
}

func (l *Log) CreateTask(ctx context.Context, title, assignedTo string, _ map[string]any) error {
	l.logger.InfoContext(ctx, "Task", "title", title, "assigned_to", assignedTo)

	return nil
}
