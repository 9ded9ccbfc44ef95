package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	received := make(chan *events.ApprovalResolved, 1)

	err = bus.Handle(events.ApprovalResolvedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ApprovalResolved)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	err = bus.Publish(t.Context(), "approval-1", events.ApprovalResolved{
		BaseEvent:  events.NewBaseEvent(events.ApprovalResolvedEvent, "workflow-1"),
		ApprovalID: "approval-1",
		RunID:      "run-1",
		StepID:     "step-3",
		Status:     models.ApprovalStatusApproved,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "approval-1", event.ApprovalID)
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, models.ApprovalStatusApproved, event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
