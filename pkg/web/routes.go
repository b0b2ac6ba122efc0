package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.GetNodeTypes)

	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Patch("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Get("/:id/graph", h.GetGraph)
	f.Put("/:id/graph", h.SaveGraph)
	f.Post("/:id/validate", h.ValidateFlow)
	f.Post("/:id/activate", h.ActivateFlow)
	f.Post("/:id/pause", h.PauseFlow)
	f.Post("/:id/duplicate", h.DuplicateFlow)
	f.Post("/:id/trigger", h.TriggerFlow)
	f.Get("/:id/contacts/:contactId/execution", h.GetContactExecution)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/cancel", h.CancelExecution)

	router.Post("/events", h.PostEvent)
	router.Post("/hooks/:flowId", h.PostHook)
}
