package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type SettingHandler struct {
	service ports.SettingService
	logger  *logger.Logger
}

func NewSettingHandler(service ports.SettingService, logger *logger.Logger) *SettingHandler {
	return &SettingHandler{service: service, logger: logger}
}

func (h *SettingHandler) GetSettings(c *fiber.Ctx) error {
	h.logger.Infow("settings_get_request")
	settings, err := h.service.GetSettings(c.UserContext(), httpmw.OwnerID(c))
	if err != nil {
		return respondError(c, h.logger, "settings_get_failed", err)
	}
	return c.JSON(settings)
}

func (h *SettingHandler) UpdateSettings(c *fiber.Ctx) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("settings_update_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}

	ownerID := httpmw.OwnerID(c)
	h.logger.Infow("settings_update_request", "keys", len(req))
	if err := h.service.UpdateSettings(c.UserContext(), ownerID, req); err != nil {
		return respondError(c, h.logger, "settings_update_failed", err)
	}

	settings, err := h.service.GetSettings(c.UserContext(), ownerID)
	if err != nil {
		return respondError(c, h.logger, "settings_get_failed", err)
	}
	return c.JSON(settings)
}

