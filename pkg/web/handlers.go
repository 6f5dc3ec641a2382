// Package web provides the REST API handlers for process and instance
// management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/services"
)

type APIHandlers struct {
	processService  *services.Process
	instanceService *services.Instance
	validator       *validator.Validate
}

func NewAPIHandlers(
	processService *services.Process,
	instanceService *services.Instance,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		processService:  processService,
		instanceService: instanceService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.processService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetProcesses(c fiber.Ctx) error {
	req := services.ListProcessesRequest{
		TargetType: c.Query("target_type"),
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "Invalid active filter: "+err.Error())
		}

		req.ActiveOnly = active
	}

	processes, err := h.processService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"processes": processes})
}

func (h *APIHandlers) GetProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	process, err := h.processService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsProcessNotFound(err) {
			return notFound(c, "Process not found")
		}

		return internalError(c, err)
	}

	return c.JSON(process)
}

func (h *APIHandlers) CreateProcess(c fiber.Ctx) error {
	var req CreateProcessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	process := &models.Process{
		Name:        req.Name,
		Description: req.Description,
		TargetType:  req.TargetType,
		Owner:       req.Owner,
		Trigger:     req.Trigger,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	}

	created, err := h.processService.Create(c.Context(), process)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	var req UpdateProcessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.processService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsProcessNotFound(err) {
			return notFound(c, "Process not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Trigger != nil {
		existing.Trigger = req.Trigger
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	updated, err := h.processService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	if err := h.processService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	result, err := h.processService.Validate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ActivateProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	process, err := h.processService.Activate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(process)
}

func (h *APIHandlers) DeactivateProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	process, err := h.processService.Deactivate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(process)
}

func (h *APIHandlers) ApplyProcessDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	process, err := h.processService.ApplyDefinition(c.Context(), id, c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(process)
}

func (h *APIHandlers) ExportProcessDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	blob, err := h.processService.ExportDefinition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(blob)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	req := services.ListInstancesRequest{
		ProcessID: c.Query("process_id"),
	}

	targetType := c.Query("target_type")
	targetID := c.Query("target_id")

	if targetType != "" && targetID != "" {
		req.Target = &models.TargetRef{Type: targetType, ID: targetID}
	}

	instances, err := h.instanceService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.instanceService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "Instance not found")
		}

		return internalError(c, err)
	}

	progress, err := h.instanceService.Progress(c.Context(), instance)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(InstanceResponse{Instance: instance, Progress: progress})
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.Create(c.Context(), req.ProcessID, req.Target, req.Owner)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Start {
		instance, err = h.instanceService.Start(c.Context(), instance.ID)
		if err != nil {
			return handleServiceError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	return h.transition(c, func(c fiber.Ctx, id string) (*models.Instance, error) {
		return h.instanceService.Start(c.Context(), id)
	})
}

func (h *APIHandlers) AdvanceInstance(c fiber.Ctx) error {
	return h.transition(c, func(c fiber.Ctx, id string) (*models.Instance, error) {
		return h.instanceService.Advance(c.Context(), id)
	})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelInstanceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	return h.transition(c, func(c fiber.Ctx, id string) (*models.Instance, error) {
		return h.instanceService.Cancel(c.Context(), id, req.Reason)
	})
}

func (h *APIHandlers) ValidateInstanceTask(c fiber.Ctx) error {
	var req TaskDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.transition(c, func(c fiber.Ctx, id string) (*models.Instance, error) {
		return h.instanceService.ValidateTask(c.Context(), id, req.UserID)
	})
}

func (h *APIHandlers) RejectInstanceTask(c fiber.Ctx) error {
	var req TaskDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.transition(c, func(c fiber.Ctx, id string) (*models.Instance, error) {
		return h.instanceService.RejectTask(c.Context(), id, req.UserID, req.Reason)
	})
}

func (h *APIHandlers) DeleteInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	if err := h.instanceService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) transition(c fiber.Ctx, op func(fiber.Ctx, string) (*models.Instance, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := op(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}
