package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	dedupPrefix      = "webhook:msg:v1:"
	inProgressMarker = "__in_progress__"
)

type storedReply struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// MessageDedup absorbs gateway webhook redeliveries. Gateways retry on
// timeouts, so the same message id can arrive more than once; the first
// delivery is processed and its response stored in Redis, replays get the
// stored response back without re-running the command.
func MessageDedup(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var envelope struct {
			MessageID string `json:"message_id"`
		}
		// Deliveries without a message id cannot be deduplicated; let them
		// through rather than reject them.
		if err := json.Unmarshal(c.Body(), &envelope); err != nil || envelope.MessageID == "" {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := dedupPrefix + envelope.MessageID

		cached, err := cache.Get(ctx, key).Result()
		if err == nil {
			if cached == inProgressMarker {
				return fiber.NewError(fiber.StatusConflict, "message currently processing")
			}
			var stored storedReply
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("stored webhook reply undecodable", "message_id", envelope.MessageID, "error", err)
				return fiber.NewError(fiber.StatusConflict, "duplicate message")
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(stored.Status).SendString(stored.Body)
		}
		if err != redis.Nil {
			// Fail open: losing dedup is better than dropping messages.
			logger.Error("webhook dedup lookup failed", "message_id", envelope.MessageID, "error", err)
			return c.Next()
		}

		if err := cache.SetNX(ctx, key, inProgressMarker, ttl).Err(); err != nil {
			logger.Error("webhook dedup reservation failed", "message_id", envelope.MessageID, "error", err)
			return c.Next()
		}

		if err := c.Next(); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cache.Del(cleanupCtx, key)
			return err
		}

		payload, err := json.Marshal(storedReply{
			Status: c.Response().StatusCode(),
			Body:   string(c.Response().Body()),
		})
		if err != nil {
			logger.Error("encode webhook reply failed", "message_id", envelope.MessageID, "error", err)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()
		if err := cache.Set(persistCtx, key, payload, ttl).Err(); err != nil {
			logger.Error("persist webhook reply failed", "message_id", envelope.MessageID, "error", err)
		}
		return nil
	}
}
