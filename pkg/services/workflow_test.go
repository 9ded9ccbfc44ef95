package services

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newWorkflowService(t *testing.T) *Workflow {
	t.Helper()

	return NewWorkflow(file.NewPersistence(t.TempDir()), registry.NewDefaultRegistry(slog.Default()), slog.Default())
}

func TestNewWorkflow(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persistence, nil, slog.Default())

	assert.NotNil(t, service)
	assert.Equal(t, persistence, service.persistence)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service := newWorkflowService(t)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	broken := mocks.NewMockPersistence(nil)
	broken.On("HealthCheck", mock.Anything).Return(errors.New("disk gone"))

	message, ok = NewWorkflow(broken, nil, slog.Default()).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "disk gone")
}

func TestWorkflow_Create(t *testing.T) {
	service := newWorkflowService(t)

	workflow := &models.Workflow{
		Name:        "Late dues reminder",
		Description: "Reminds owners about late dues",
		Category:    "finance",
		Status:      models.WorkflowStatusActive,
		Steps: []*models.WorkflowStep{
			testutil.Trigger("t1"),
			testutil.EmailAction("a1", "owner@example.com"),
		},
	}

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status, "new workflows start as drafts")

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Late dues reminder", fetched.Name)
	assert.Len(t, fetched.Steps, 2)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	service := newWorkflowService(t)

	tests := []struct {
		name     string
		workflow *models.Workflow
		wantErr  error
	}{
		{name: "nil workflow", workflow: nil, wantErr: ErrWorkflowNil},
		{name: "short name", workflow: &models.Workflow{Name: "ab"}, wantErr: ErrInvalidRequest},
		{
			name:     "step without type",
			workflow: &models.Workflow{Name: "Reminder", Steps: []*models.WorkflowStep{{ID: "s1"}}},
			wantErr:  ErrInvalidRequest,
		},
		{
			name:     "step with unknown type",
			workflow: &models.Workflow{Name: "Reminder", Steps: []*models.WorkflowStep{{ID: "s1", Type: "webhook"}}},
			wantErr:  ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tt.workflow)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_FetchByIDNotFound(t *testing.T) {
	service := newWorkflowService(t)

	_, err := service.FetchByID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_Update(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), &models.Workflow{Name: "Original"})
	require.NoError(t, err)

	service.now = func() time.Time { return created.CreatedAt.Add(time.Hour) }

	updated, err := service.Update(t.Context(), created.ID, &models.Workflow{
		Name:   "Renamed",
		Status: models.WorkflowStatusActive,
		Steps:  []*models.WorkflowStep{testutil.Trigger("t1")},
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, models.WorkflowStatusDraft, updated.Status, "status changes only through activation")
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	_, err = service.Update(t.Context(), "missing", &models.Workflow{Name: "Renamed"})
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Delete(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), &models.Workflow{Name: "Disposable"})
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	require.ErrorIs(t, service.Delete(t.Context(), created.ID), ErrWorkflowNotFound)
}

func TestWorkflow_ListWorkflows(t *testing.T) {
	service := newWorkflowService(t)

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		_, err := service.Create(t.Context(), &models.Workflow{Name: name, Owner: "board"})
		require.NoError(t, err)
	}

	draft := models.WorkflowStatusDraft
	bogus := models.WorkflowStatus("published")

	tests := []struct {
		name      string
		req       ListWorkflowsRequest
		wantNames []string
		wantErr   error
	}{
		{
			name:      "sorted by name",
			req:       ListWorkflowsRequest{SortBy: "name", SortOrder: "asc"},
			wantNames: []string{"Alpha", "Bravo", "Charlie"},
		},
		{
			name:      "paginated",
			req:       ListWorkflowsRequest{SortBy: "name", SortOrder: "asc", Limit: 2, Offset: 1},
			wantNames: []string{"Bravo", "Charlie"},
		},
		{
			name:      "filtered by status",
			req:       ListWorkflowsRequest{Status: &draft, SortBy: "name", SortOrder: "desc"},
			wantNames: []string{"Charlie", "Bravo", "Alpha"},
		},
		{name: "filtered by owner", req: ListWorkflowsRequest{OwnerID: "nobody"}, wantNames: []string{}},
		{name: "invalid sort field", req: ListWorkflowsRequest{SortBy: "owner"}, wantErr: ErrInvalidSortField},
		{name: "invalid sort order", req: ListWorkflowsRequest{SortOrder: "sideways"}, wantErr: ErrInvalidSortOrder},
		{name: "invalid status", req: ListWorkflowsRequest{Status: &bogus}, wantErr: ErrInvalidStatus},
		{name: "blank owner", req: ListWorkflowsRequest{OwnerID: "   "}, wantErr: ErrEmptyOwnerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.ListWorkflows(t.Context(), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))

				return
			}

			require.NoError(t, err)

			names := make([]string, 0, len(resp.Workflows))
			for _, wf := range resp.Workflows {
				names = append(names, wf.Name)
			}

			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestWorkflow_RepositoryErrors(t *testing.T) {
	store := mocks.NewMockPersistence(nil)
	workflows := store.GetMockWorkflowRepository()
	service := NewWorkflow(store, nil, slog.Default())

	workflows.On("GetByID", mock.Anything, "missing").Return(nil, nil).Once()
	workflows.On("GetByID", mock.Anything, "broken").Return(nil, errors.New("connection reset")).Once()
	workflows.On("ListWorkflows", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: priority", persistence.ErrInvalidSortField)).Once()

	_, err := service.FetchByID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = service.FetchByID(t.Context(), "broken")
	require.ErrorContains(t, err, "connection reset")

	_, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{Limit: 10, SortBy: "name", SortOrder: "asc"})
	require.ErrorIs(t, err, ErrInvalidSortField)

	workflows.AssertExpectations(t)
	store.GetMockRunRepository().AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
