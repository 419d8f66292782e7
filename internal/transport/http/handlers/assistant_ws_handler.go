package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/core/services"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
)

// AssistantSocket serves a chat-style session: every text frame is one
// assistant request and every reply is a JSON AssistantResponse or
// ErrorResponse.
type AssistantSocket struct {
	assistant ports.AssistantService
	users     ports.UserService
	logger    *logger.Logger
}

func NewAssistantSocket(assistant ports.AssistantService, users ports.UserService, logger *logger.Logger) *AssistantSocket {
	return &AssistantSocket{assistant: assistant, users: users, logger: logger}
}

func (h *AssistantSocket) Handle(c *websocket.Conn) {
	ownerID, _ := c.Locals("owner_id").(string)
	if ownerID == "" {
		_ = c.WriteJSON(dto.ErrorResponse{Error: "unauthorized"})
		_ = c.Close()
		return
	}
	defer c.Close()

	loc := time.UTC
	if user, err := h.users.GetUser(context.Background(), ownerID); err == nil {
		loc = user.Location()
	}

	h.logger.Infow("assistant_ws_open", "owner_id", ownerID)
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			h.logger.Infow("assistant_ws_closed", "owner_id", ownerID, "error", err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		text := strings.TrimSpace(string(msg))
		if text == "" || len(text) > dto.MaxMessageLength {
			if werr := c.WriteJSON(dto.ErrorResponse{Error: "message must be 1-4000 characters"}); werr != nil {
				return
			}
			continue
		}

		if err := c.WriteJSON(h.reply(ownerID, text, loc)); err != nil {
			h.logger.Warnw("assistant_ws_write_failed", "error", err)
			return
		}
	}
}

// reply runs one request and builds the frame sent back for it.
func (h *AssistantSocket) reply(ownerID, text string, loc *time.Location) interface{} {
	ctx := services.WithRequestID(context.Background(), uuid.New().String())
	result, err := h.assistant.Handle(ctx, ownerID, text)
	if err != nil {
		_, msg := clientError(h.logger.With("owner_id", ownerID), "assistant_ws_request_failed", err)
		return dto.ErrorResponse{Error: msg}
	}
	return dto.AssistantResultToResponse(result, loc)
}
