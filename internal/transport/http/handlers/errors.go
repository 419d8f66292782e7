package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/core/services"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, services.ErrSmartTagInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrSmartTagNotFound),
		errors.Is(err, services.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUserAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrTokenExpired):
		return fiber.StatusUnauthorized
	case errors.Is(err, ports.ErrUpstreamTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, ports.ErrUpstreamUnavailable),
		errors.Is(err, services.ErrSearchUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ports.ErrMalformedResponse),
		errors.Is(err, services.ErrScheduleEditParse),
		errors.Is(err, services.ErrFilterValidation),
		errors.Is(err, services.ErrUnsupportedAction):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// clientError logs err under event and returns the status and message a
// client may see. Internal errors are not echoed.
func clientError(log *logger.Logger, event string, err error) (int, string) {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Errorw(event, "error", err)
		return status, "internal server error"
	}
	log.Warnw(event, "status", status, "error", err)
	return status, err.Error()
}

func respondError(c *fiber.Ctx, log *logger.Logger, event string, err error) error {
	status, msg := clientError(log, event, err)
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg})
}

func badRequest(c *fiber.Ctx, msg string, details ...string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:   msg,
		Details: details,
	})
}
