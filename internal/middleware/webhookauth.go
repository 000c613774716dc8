package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const (
	signatureHeader = "X-Webhook-Signature"
	legacyKeyHeader = "X-API-Key"
)

// WebhookAuth authenticates webhook deliveries by an HMAC-SHA256 of the raw
// request body, hex-encoded in X-Webhook-Signature. The legacy shared-key
// header is still accepted when legacyKey is configured, but logged so
// integrations can be migrated off it. Comparison is constant-time in both
// modes.
func WebhookAuth(secret, legacyKey string, logger *slog.Logger) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if sig := c.Get(signatureHeader); sig != "" {
			mac := hmac.New(sha256.New, key)
			mac.Write(c.Body())
			want := mac.Sum(nil)

			got, err := hex.DecodeString(sig)
			if err != nil || !hmac.Equal(got, want) {
				return fiber.NewError(http.StatusUnauthorized, "invalid webhook signature")
			}
			return c.Next()
		}

		if legacy := c.Get(legacyKeyHeader); legacy != "" && legacyKey != "" {
			if subtle.ConstantTimeCompare([]byte(legacy), []byte(legacyKey)) != 1 {
				return fiber.NewError(http.StatusUnauthorized, "invalid api key")
			}
			logger.Warn("webhook authenticated with deprecated api key header", "path", c.Path())
			return c.Next()
		}

		return fiber.NewError(http.StatusUnauthorized, "missing webhook signature")
	}
}
