package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/textpesa/textpesa/internal/logging"
)

func setupDedupApp(t *testing.T) (*fiber.App, *atomic.Int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var handled atomic.Int32
	app := fiber.New()
	app.Use(MessageDedup(cache, time.Minute, logging.Discard()))
	app.Post("/webhook/sms", func(c *fiber.Ctx) error {
		handled.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"body": "reply text"})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, &handled, cleanup
}

func postSMS(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhook/sms", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestMessageDedupReplaysStoredResponse(t *testing.T) {
	app, handled, cleanup := setupDedupApp(t)
	defer cleanup()

	body := `{"message_id":"m-1","from":"+254700000001","body":"BALANCE"}`

	status, first := postSMS(t, app, body)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	status, second := postSMS(t, app, body)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", status)
	}
	if first != second {
		t.Fatalf("expected identical replies, got %q and %q", first, second)
	}
	if handled.Load() != 1 {
		t.Fatalf("expected handler run once, got %d", handled.Load())
	}
}

func TestMessageDedupSeparatesMessageIDs(t *testing.T) {
	app, handled, cleanup := setupDedupApp(t)
	defer cleanup()

	postSMS(t, app, `{"message_id":"m-1","from":"+254700000001","body":"BALANCE"}`)
	postSMS(t, app, `{"message_id":"m-2","from":"+254700000001","body":"BALANCE"}`)

	if handled.Load() != 2 {
		t.Fatalf("expected handler run twice, got %d", handled.Load())
	}
}

func TestMessageDedupPassesThroughWithoutID(t *testing.T) {
	app, handled, cleanup := setupDedupApp(t)
	defer cleanup()

	postSMS(t, app, `{"from":"+254700000001","body":"BALANCE"}`)
	postSMS(t, app, `{"from":"+254700000001","body":"BALANCE"}`)

	if handled.Load() != 2 {
		t.Fatalf("expected no dedup without message id, got %d", handled.Load())
	}
}
