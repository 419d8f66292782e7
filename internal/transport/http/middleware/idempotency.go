package middleware

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
)

const IdempotencyHeader = "Idempotency-Key"

type storedResponse struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Requests without the header pass through. 5xx responses are not stored so
// the client may retry them.
func Idempotency(store ports.IdempotencyStore, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyHeader)
		if store == nil || key == "" || c.Method() != fiber.MethodPost {
			return c.Next()
		}
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Idempotency-Key is too long",
			})
		}

		ctx := c.UserContext()
		ownerID := OwnerID(c)

		raw, ok, err := store.Lookup(ctx, ownerID, key)
		if err != nil {
			log.Warnw("idempotency_lookup_failed", "error", err)
			return c.Next()
		}
		if ok {
			var stored storedResponse
			if err := json.Unmarshal(raw, &stored); err == nil {
				log.Debugw("idempotency_replay", "key", key)
				c.Set("Idempotent-Replayed", "true")
				c.Set(fiber.HeaderContentType, stored.ContentType)
				return c.Status(stored.Status).Send(stored.Body)
			}
		}

		reserved, err := store.Reserve(ctx, ownerID, key)
		if err != nil {
			log.Warnw("idempotency_reserve_failed", "error", err)
			return c.Next()
		}
		if !reserved {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "request with this Idempotency-Key is already in progress",
			})
		}

		if err := c.Next(); err != nil {
			_ = store.Release(ctx, ownerID, key)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			if err := store.Release(ctx, ownerID, key); err != nil {
				log.Warnw("idempotency_release_failed", "error", err)
			}
			return nil
		}

		payload, err := json.Marshal(storedResponse{
			Status:      status,
			Body:        c.Response().Body(),
			ContentType: string(c.Response().Header.ContentType()),
		})
		if err == nil {
			err = store.Complete(ctx, ownerID, key, payload)
		}
		if err != nil {
			log.Warnw("idempotency_complete_failed", "error", err)
		}
		return nil
	}
}
