package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type AssistantHandler struct {
	assistant ports.AssistantService
	jobs      ports.JobService
	users     ports.UserService
	logger    *logger.Logger
}

func NewAssistantHandler(assistant ports.AssistantService, jobs ports.JobService, users ports.UserService, logger *logger.Logger) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, jobs: jobs, users: users, logger: logger}
}

// Handle runs one natural-language request through the assistant. With
// ?async=true it returns 202 and a job to poll instead.
func (h *AssistantHandler) Handle(c *fiber.Ctx) error {
	var req dto.AssistantRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("assistant_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	ownerID := httpmw.OwnerID(c)
	loc := location(c, h.users)

	if c.QueryBool("async") && h.jobs != nil {
		job := h.jobs.Submit(c.UserContext(), ownerID, req.Message)
		h.logger.Infow("assistant_job_submitted", "owner_id", ownerID, "job_id", job.ID)
		c.Set(fiber.HeaderLocation, "/api/v1/assistant/jobs/"+job.ID)
		return c.Status(fiber.StatusAccepted).JSON(dto.JobToResponse(job, loc))
	}

	h.logger.Infow("assistant_request", "owner_id", ownerID)
	result, err := h.assistant.Handle(c.UserContext(), ownerID, req.Message)
	if err != nil {
		return respondError(c, h.logger, "assistant_failed", err)
	}
	return c.JSON(dto.AssistantResultToResponse(result, loc))
}

func (h *AssistantHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.jobs.Get(httpmw.OwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "assistant_job_get_failed", err)
	}
	return c.JSON(dto.JobToResponse(job, location(c, h.users)))
}
