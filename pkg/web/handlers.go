package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/worker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of the execution engine the API drives.
type Engine interface {
	Trigger(ctx context.Context, req engine.TriggerRequest) (*models.ExecutionContext, error)
	HandleEvent(ctx context.Context, event models.InboundEvent) ([]*models.ExecutionContext, error)
	Cancel(ctx context.Context, executionID string) (*models.ExecutionContext, error)
	Status(ctx context.Context, flowID, contactID string) (*models.ExecutionContext, error)
}

type APIHandlers struct {
	flowService *services.Flow
	engine      Engine
	validator   *validator.Validate
	registry    *registry.Registry
	// inbound, when set, queues events for the workers instead of running
	// them in the request.
	inbound eventbus.EventPublisher
}

func NewAPIHandlers(
	flowService *services.Flow,
	engine Engine,
	validator *validator.Validate,
	registry *registry.Registry,
	inbound eventbus.EventPublisher,
) *APIHandlers {
	return &APIHandlers{
		flowService: flowService,
		engine:      engine,
		validator:   validator,
		registry:    registry,
		inbound:     inbound,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Chatflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Chatflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	types := h.registry.Types()

	category := c.Query("category")
	out := make([]NodeTypeResponse, 0, len(types))

	for _, nodeType := range types {
		if category != "" && string(nodeType.Category()) != category {
			continue
		}

		out = append(out, TransformNodeType(nodeType))
	}

	return c.JSON(out)
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	orgID := c.Query("organization_id")
	if orgID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	flows, err := h.flowService.List(c.Context(), orgID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":       flows,
		"total_count": len(flows),
	})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), &models.Flow{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		Trigger:        req.Trigger,
		Reentry:        req.Reentry,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.flowService.UpdateDefinition(c.Context(), id, func(flow *models.Flow) {
		if req.Name != nil {
			flow.Name = *req.Name
		}

		if req.Description != nil {
			flow.Description = *req.Description
		}

		if req.Trigger != nil {
			flow.Trigger = *req.Trigger
		}

		if req.Reentry != nil {
			flow.Reentry = *req.Reentry
		}
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.IsActive != nil && *req.IsActive != updated.IsActive {
		updated, err = h.flowService.SetEnabled(c.Context(), id, *req.IsActive)
		if err != nil {
			return handleServiceError(c, err)
		}
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	id := c.Params("id")

	flow, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	nodes, edges, err := h.flowService.LoadGraph(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(GraphResponse{FlowID: id, GraphVersion: flow.GraphVersion, Nodes: nodes, Edges: edges})
}

func (h *APIHandlers) SaveGraph(c fiber.Ctx) error {
	id := c.Params("id")

	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.flowService.SaveGraph(c.Context(), id, req.Nodes, req.Edges)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(GraphResponse{FlowID: id, GraphVersion: version, Nodes: req.Nodes, Edges: req.Edges})
}

func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	err := h.flowService.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	flow, err := h.flowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) PauseFlow(c fiber.Ctx) error {
	flow, err := h.flowService.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) DuplicateFlow(c fiber.Ctx) error {
	var req DuplicateFlowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	copied, err := h.flowService.Duplicate(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(copied)
}

// TriggerFlow starts a flow for one contact. A contact that already runs the
// flow gets its current execution back with 200.
func (h *APIHandlers) TriggerFlow(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ec, err := h.engine.Trigger(c.Context(), engine.TriggerRequest{
		FlowID:    c.Params("id"),
		ContactID: req.ContactID,
		Variables: req.Variables,
	})

	switch {
	case errors.Is(err, models.ErrDuplicateTrigger) && ec != nil:
		return c.JSON(ec)
	case err != nil:
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ec)
}

func (h *APIHandlers) GetContactExecution(c fiber.Ctx) error {
	ec, err := h.engine.Status(c.Context(), c.Params("id"), c.Params("contactId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ec)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	ec, err := h.flowService.Execution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ec)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	entries, err := h.flowService.Logs(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": c.Params("id"),
		"logs":         entries,
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	ec, err := h.engine.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ec)
}

// PostEvent accepts an inbound event from the WhatsApp gateway.
func (h *APIHandlers) PostEvent(c fiber.Ctx) error {
	var event models.InboundEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	return h.dispatchEvent(c, event)
}

// PostHook turns a webhook call into an event addressed to one flow.
func (h *APIHandlers) PostHook(c fiber.Ctx) error {
	var req HookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow, err := h.flowService.FetchByID(c.Context(), c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	payload := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		payload[k] = v
	}

	if req.Event != "" {
		payload["event"] = req.Event
	}

	return h.dispatchEvent(c, models.InboundEvent{
		Kind:           models.EventWebhook,
		OrganizationID: flow.OrganizationID,
		ContactID:      req.ContactID,
		FlowID:         flow.ID,
		Payload:        payload,
	})
}

func (h *APIHandlers) dispatchEvent(c fiber.Ctx, event models.InboundEvent) error {
	if h.inbound != nil {
		err := worker.PublishInbound(c.Context(), h.inbound, event)
		if err != nil {
			return internalError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(ExecutionsResponse{Executions: []*models.ExecutionContext{}, Queued: true})
	}

	executions, err := h.engine.HandleEvent(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	if executions == nil {
		executions = []*models.ExecutionContext{}
	}

	return c.JSON(ExecutionsResponse{Executions: executions})
}
