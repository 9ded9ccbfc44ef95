// Package web provides HTTP handlers and REST API endpoints for workflows, runs and approvals.
package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/editor"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Run
	approvalService *services.Approval
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runService *services.Run,
	approvalService *services.Approval,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runService:      runService,
		approvalService: approvalService,
		validator:       validator,
		registry:        registry,
	}
}

// Routes mounts every endpoint on the router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/components", h.GetComponents)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)

	w.Post("/:id/steps", h.AddStep)
	w.Put("/:id/steps", h.SetSteps)
	w.Delete("/:id/steps", h.ResetSteps)
	w.Patch("/:id/steps/:stepId", h.UpdateStep)
	w.Delete("/:id/steps/:stepId", h.RemoveStep)
	w.Post("/:id/steps/:stepId/move", h.MoveStep)

	w.Post("/:id/runs", h.StartRun)
	w.Get("/:id/runs", h.GetWorkflowRuns)

	r := router.Group("/runs")
	r.Get("/:runId", h.GetRun)
	r.Post("/:runId/cancel", h.CancelRun)
	r.Post("/:runId/resume", h.ResumeRun)
	r.Get("/:runId/approvals", h.GetRunApprovals)

	a := router.Group("/approvals")
	a.Get("/:approvalId", h.GetApproval)
	a.Post("/:approvalId/decisions", h.DecideApproval)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Stepflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GetComponents lists the config schemas of the known action and trigger types.
func (h *APIHandlers) GetComponents(c fiber.Ctx) error {
	return c.JSON(h.registry.Components())
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.OwnerID = c.Query("owner_id")
	req.Category = c.Query("category")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	owner := req.Owner
	if owner == "" {
		if actor := actorFromRequest(c); actor != nil {
			owner = actor.ID
		}
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Owner:       owner,
		Variables:   req.Variables,
		Steps:       req.Steps,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	// Apply partial updates (steps are managed separately)
	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Category != nil {
		existing.Category = *req.Category
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	activated, err := h.workflowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(activated)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	deactivated, err := h.workflowService.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deactivated)
}

// parseStepLocation reads the branch query parameter: a comma separated list of
// conditionID:branch pairs leading from the top level to the edited list.
func parseStepLocation(c fiber.Ctx) (services.StepLocation, error) {
	location := services.StepLocation{}

	raw := c.Query("branch")
	if raw == "" {
		return location, nil
	}

	for _, part := range strings.Split(raw, ",") {
		stepID, branch, ok := strings.Cut(part, ":")
		if !ok || stepID == "" || (branch != string(models.BranchTrue) && branch != string(models.BranchFalse)) {
			return location, fmt.Errorf("invalid branch %q, expected <condition id>:true|false", part)
		}

		location.Path = append(location.Path, models.BranchRef{StepID: stepID, Branch: models.Branch(branch)})
	}

	return location, nil
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req AddStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.workflowService.AddStep(c.Context(), c.Params("id"), location, req.AfterID, req.Type)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var patch models.StepPatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := h.workflowService.UpdateStep(c.Context(), c.Params("id"), location, c.Params("stepId"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.RemoveStep(c.Context(), c.Params("id"), location, c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) MoveStep(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req MoveStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.MoveStep(c.Context(), c.Params("id"), location, c.Params("stepId"), editor.Direction(req.Direction))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ResetSteps(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.ResetSteps(c.Context(), c.Params("id"), location)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) SetSteps(c fiber.Ctx) error {
	location, err := parseStepLocation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req SetStepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.SetSteps(c.Context(), c.Params("id"), location, req.Steps)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req services.StartRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Start(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformRunResponse(run))
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	runs, err := h.runService.ListByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	response := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, TransformRunResponse(run))
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runService.Get(c.Context(), c.Params("runId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	if actorFromRequest(c) == nil {
		return unauthorized(c, "missing "+HeaderUserID+" header")
	}

	var req CancelRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.runService.Cancel(c.Context(), c.Params("runId"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

// ResumeRun retries a run whose approval was resolved but which did not resume.
func (h *APIHandlers) ResumeRun(c fiber.Ctx) error {
	if actorFromRequest(c) == nil {
		return unauthorized(c, "missing "+HeaderUserID+" header")
	}

	run, err := h.runService.Resume(c.Context(), c.Params("runId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

func (h *APIHandlers) GetRunApprovals(c fiber.Ctx) error {
	approvals, err := h.approvalService.ListByRun(c.Context(), c.Params("runId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approvals)
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	approval, err := h.approvalService.Get(c.Context(), c.Params("approvalId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approval)
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	var req services.DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	approval, err := h.approvalService.Decide(c.Context(), c.Params("approvalId"), actorFromRequest(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approval)
}
