package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type UserHandler struct {
	users  ports.UserService
	logger *logger.Logger
}

func NewUserHandler(users ports.UserService, logger *logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.users.GetUser(c.UserContext(), httpmw.OwnerID(c))
	if err != nil {
		return respondError(c, h.logger, "user_get_failed", err)
	}
	return c.JSON(dto.UserToResponse(user))
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("user_update_validation_failed", "details", errors)
		return badRequest(c, "validation failed", errors...)
	}

	ownerID := httpmw.OwnerID(c)
	h.logger.Infow("user_update_request", "user_id", ownerID)
	user, err := h.users.UpdateUser(c.UserContext(), ownerID, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "user_update_failed", err)
	}
	return c.JSON(dto.UserToResponse(user))
}

func (h *UserHandler) DeleteMe(c *fiber.Ctx) error {
	ownerID := httpmw.OwnerID(c)
	h.logger.Infow("user_delete_request", "user_id", ownerID)
	if err := h.users.DeleteUser(c.UserContext(), ownerID); err != nil {
		return respondError(c, h.logger, "user_delete_failed", err)
	}
	h.logger.Infow("user_delete_success", "user_id", ownerID)
	return c.SendStatus(fiber.StatusNoContent)
}
