package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPGateway posts outbound messages to the configured gateway endpoint.
type HTTPGateway struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewHTTPGateway builds a gateway connector with a bounded send timeout.
func NewHTTPGateway(url, apiKey, senderID string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

// Send posts one message. Non-2xx responses are errors so the notification
// queue can retry.
func (g *HTTPGateway) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendRequest{To: to, From: g.senderID, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway send: unexpected status %d", resp.StatusCode)
	}
	return nil
}
