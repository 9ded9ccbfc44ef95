package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
)

// ErrUnexpectedEvent is returned when a handler receives an event of the wrong type.
var ErrUnexpectedEvent = errors.New("unexpected event payload")

// Delivery is the full set of side effects a dispatcher can carry out.
type Delivery interface {
	Notifier
	EmailSender
	TaskCreator
}

// Dispatcher consumes request events from the bus and hands them to a Delivery.
type Dispatcher struct {
	delivery Delivery
	logger   *slog.Logger
}

func NewDispatcher(delivery Delivery, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		delivery: delivery,
		logger:   logger.With("module", "notify_dispatcher"),
	}
}

// Register attaches the dispatcher's handlers. The caller still has to Subscribe.
func (d *Dispatcher) Register(subscriber eventbus.EventSubscriber) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.NotificationRequestedEvent: d.handleNotification,
		events.EmailRequestedEvent:        d.handleEmail,
		events.TaskRequestedEvent:         d.handleTask,
	}

	for eventType, handler := range handlers {
		err := subscriber.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}

func (d *Dispatcher) handleNotification(ctx context.Context, event any) error {
	req, ok := event.(*events.NotificationRequested)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	return d.delivery.Notify(ctx, req.Kind, req.Title, req.Message)
}

func (d *Dispatcher) handleEmail(ctx context.Context, event any) error {
	req, ok := event.(*events.EmailRequested)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	err := d.delivery.SendEmail(ctx, req.To, req.Subject, req.Body)
	if errors.Is(err, ErrNoRecipient) {
		// redelivery cannot fix a missing address
		d.logger.WarnContext(ctx, "Dropping email without recipient", "event_id", req.ID)

		return nil
	}

	return err
}

func (d *Dispatcher) handleTask(ctx context.Context, event any) error {
	req, ok := event.(*events.TaskRequested)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	return d.delivery.CreateTask(ctx, req.Title, req.AssignedTo, req.Details)
}
