package web

import (
	"errors"

	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// GraphProblem is the body of a 422 answer for an invalid graph.
type GraphProblem struct {
	*problems.Problem

	Problems []graph.Problem `json:"problems"`
}

// handleServiceError maps the error taxonomy to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	var graphErr *graph.Error

	switch {
	case errors.As(err, &graphErr):
		problemType := "graph_invalid"
		if errors.Is(err, models.ErrConfigInvalid) {
			problemType = "config_invalid"
		}

		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType(problemType).
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(GraphProblem{Problem: problem, Problems: graphErr.Problems})

	case errors.Is(err, models.ErrConfigInvalid):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("config_invalid").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType(conflictType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, models.ErrFlowNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("flow_not_found").
			WithDetail("flow not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, models.ErrExecutionNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("execution_not_found").
			WithDetail("execution not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, models.ErrContactNotFound):
		return notFound(c, "contact not found")

	default:
		return internalError(c, err)
	}
}

func conflictType(err error) string {
	switch {
	case errors.Is(err, models.ErrDuplicateTrigger):
		return "duplicate_trigger"
	case errors.Is(err, models.ErrFlowNotActive):
		return "flow_not_active"
	case errors.Is(err, models.ErrExecutionFinished):
		return "execution_finished"
	case errors.Is(err, models.ErrStorageConflict):
		return "storage_conflict"
	default:
		return "conflict"
	}
}
