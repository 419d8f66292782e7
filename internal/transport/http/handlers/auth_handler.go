package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
)

type AuthHandler struct {
	auth   ports.AuthService
	logger *logger.Logger
}

func NewAuthHandler(auth ports.AuthService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("auth_register_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("auth_register_validation_failed", "details", errors)
		return badRequest(c, "validation failed", errors...)
	}

	h.logger.Infow("auth_register_request", "telegram_id", req.TelegramID)
	user, pair, err := h.auth.Register(c.UserContext(), req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "auth_register_failed", err)
	}

	h.logger.Infow("auth_register_success", "user_id", user.ID)
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{
		User:  dto.UserToResponse(user),
		Token: pair,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	pair, err := h.auth.Login(c.UserContext(), req.TelegramID, req.Password)
	if err != nil {
		return respondError(c, h.logger, "auth_login_failed", err)
	}
	h.logger.Infow("auth_login_success", "telegram_id", req.TelegramID)
	return c.JSON(dto.AuthResponse{Token: pair})
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return respondError(c, h.logger, "auth_refresh_failed", err)
	}
	return c.JSON(dto.AuthResponse{Token: pair})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	if err := h.auth.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return respondError(c, h.logger, "auth_logout_failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
