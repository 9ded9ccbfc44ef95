package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(ApprovalResolvedEvent, "workflow-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, ApprovalResolvedEvent, event.Type)
	assert.Equal(t, "workflow-1", event.WorkflowID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

func TestApprovalResolved_JSON(t *testing.T) {
	event := ApprovalResolved{
		BaseEvent:  NewBaseEvent(ApprovalResolvedEvent, "workflow-1"),
		ApprovalID: "approval-1",
		RunID:      "run-1",
		StepID:     "step-4",
		Status:     models.ApprovalStatusRejected,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"approval_id":"approval-1"`)
	assert.Contains(t, string(data), `"status":"rejected"`)

	var decoded ApprovalResolved

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.RunID, decoded.RunID)
	assert.Equal(t, ApprovalResolvedEvent, decoded.GetType())
}
