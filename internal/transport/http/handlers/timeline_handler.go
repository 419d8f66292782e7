package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type TimelineHandler struct {
	repo         ports.TimelineRepository
	defaultLimit int
	logger       *logger.Logger
}

func NewTimelineHandler(repo ports.TimelineRepository, defaultLimit int, logger *logger.Logger) *TimelineHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &TimelineHandler{repo: repo, defaultLimit: defaultLimit, logger: logger}
}

// GetEvents lists the caller's assistant events, either for one request_id
// or the most recent ones.
func (h *TimelineHandler) GetEvents(c *fiber.Ctx) error {
	ownerID := httpmw.OwnerID(c)
	var (
		events []domain.TimelineEvent
		err    error
	)
	if rid := c.Query("request_id"); rid != "" {
		events, err = h.repo.ListByRequest(c.UserContext(), ownerID, rid)
	} else {
		limit := h.defaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n < 1 || n > 500 {
				return badRequest(c, "limit must be between 1 and 500")
			}
			limit = n
		}
		events, err = h.repo.ListByOwner(c.UserContext(), ownerID, limit)
	}
	if err != nil {
		return respondError(c, h.logger, "timeline_list_failed", err)
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return c.JSON(events)
}
