package dispatch

import (
	"math/big"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/textpesa/textpesa/internal/settlement"
)

// Handler exposes the inbound webhook endpoints.
type Handler struct {
	dispatcher *Dispatcher
	settle     *settlement.Service
}

// NewHandler constructs a webhook handler.
func NewHandler(dispatcher *Dispatcher, settle *settlement.Service) *Handler {
	return &Handler{dispatcher: dispatcher, settle: settle}
}

type inboundSMSRequest struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
}

// InboundSMS receives one message from the gateway and answers with the
// reply text the gateway should send back.
func (h *Handler) InboundSMS(c *fiber.Ctx) error {
	var req inboundSMSRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.From == "" {
		return fiber.NewError(http.StatusBadRequest, "missing sender")
	}

	reply := h.dispatcher.Handle(c.UserContext(), req.From, req.Body)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"to":   req.From,
		"body": reply,
	})
}

type transactionEventRequest struct {
	Signature string `json:"signature"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Contract  string `json:"contract"`
}

// TransactionEvent receives a transfer observed by an external indexer.
// Amount is in the asset's base units. Replays are absorbed by the
// recorder's signature idempotency.
func (h *Handler) TransactionEvent(c *fiber.Ctx) error {
	var req transactionEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Signature == "" || req.To == "" {
		return fiber.NewError(http.StatusBadRequest, "missing signature or recipient")
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	ours, err := h.settle.RecordIncoming(c.UserContext(), req.To, req.From, amount, req.Contract, req.Signature)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"recorded": ours})
}
