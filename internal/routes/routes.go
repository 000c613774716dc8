package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/textpesa/textpesa/internal/chain"
	"github.com/textpesa/textpesa/internal/config"
	"github.com/textpesa/textpesa/internal/dispatch"
	"github.com/textpesa/textpesa/internal/middleware"
	"github.com/textpesa/textpesa/internal/settlement"
)

// webhookDedupTTL is how long a processed gateway message id absorbs
// redeliveries.
const webhookDedupTTL = 10 * time.Minute

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Cache      *redis.Client
	Chain      chain.Client
	Logger     *slog.Logger
	Dispatcher *dispatch.Dispatcher
	Settle     *settlement.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	handler := dispatch.NewHandler(d.Dispatcher, d.Settle)
	hooks := app.Group("/webhook",
		middleware.WebhookAuth(d.Cfg.Webhook.Secret, d.Cfg.Webhook.LegacyAPIKey, d.Logger))

	var smsHandlers []fiber.Handler
	smsHandlers = append(smsHandlers, middleware.SenderRateLimit(d.Cache, d.Cfg.SMSRateLimit))
	if d.Cache != nil {
		smsHandlers = append(smsHandlers, middleware.MessageDedup(d.Cache, webhookDedupTTL, d.Logger))
	}
	smsHandlers = append(smsHandlers, handler.InboundSMS)

	hooks.Post("/sms", smsHandlers...)
	hooks.Post("/transactions", handler.TransactionEvent)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
