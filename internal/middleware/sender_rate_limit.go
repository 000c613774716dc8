package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// SenderRateLimit caps inbound messages per phone number per minute using a
// Redis counter. Without Redis, or on cache errors, it fails open.
func SenderRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		var envelope struct {
			From string `json:"from"`
		}
		_ = json.Unmarshal(c.Body(), &envelope)
		sender := strings.TrimSpace(envelope.From)
		if sender == "" {
			sender = c.IP()
		}

		key := "rl:sms:" + sender
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many messages, slow down")
		}
		return c.Next()
	}
}
