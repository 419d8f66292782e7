package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type TagHandler struct {
	tags   ports.SmartTagService
	logger *logger.Logger
}

func NewTagHandler(tags ports.SmartTagService, logger *logger.Logger) *TagHandler {
	return &TagHandler{tags: tags, logger: logger}
}

func (h *TagHandler) CreateTag(c *fiber.Ctx) error {
	var req dto.CreateTagRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	taskID := c.Params("id")
	tag, err := h.tags.CreateTag(c.UserContext(), httpmw.OwnerID(c), taskID, strings.TrimSpace(req.Name))
	if err != nil {
		return respondError(c, h.logger, "tag_create_failed", err)
	}
	h.logger.Infow("tag_create_success", "id", tag.ID, "task_id", taskID)
	return c.Status(fiber.StatusCreated).JSON(tag)
}

func (h *TagHandler) GetTaskTags(c *fiber.Ctx) error {
	tags, err := h.tags.ListTaskTags(c.UserContext(), httpmw.OwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "task_tags_list_failed", err)
	}
	return c.JSON(tags)
}

func (h *TagHandler) GetTags(c *fiber.Ctx) error {
	tags, err := h.tags.ListTags(c.UserContext(), httpmw.OwnerID(c))
	if err != nil {
		return respondError(c, h.logger, "tags_list_failed", err)
	}
	return c.JSON(tags)
}

func (h *TagHandler) DeleteTag(c *fiber.Ctx) error {
	if err := h.tags.DeleteTag(c.UserContext(), httpmw.OwnerID(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, "tag_delete_failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
