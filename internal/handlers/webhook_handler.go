package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// WebhookUseCase reconciles gateway notifications.
type WebhookUseCase interface {
	Handle(ctx context.Context, n domain.WebhookNotification) (domain.WebhookResult, error)
}

// WebhookHandler receives Mercado Pago notifications.
type WebhookHandler struct {
	reconciler WebhookUseCase
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler WebhookUseCase) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// webhookBody covers both the webhook and the legacy IPN payloads.
type webhookBody struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	ID       any    `json:"id"`
	Data     struct {
		ID any `json:"id"`
	} `json:"data"`
}

// HandleWebhook handles POST /webhooks/mercadopago
// The gateway retries anything but a 2xx, so every notification that could
// be parsed is acknowledged.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	var body webhookBody
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": "unreadable body"})
		return
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": "malformed body"})
			return
		}
	}

	n := domain.WebhookNotification{
		Topic:      firstNonEmpty(c.Query("type"), c.Query("topic"), body.Type, body.Topic),
		ResourceID: firstNonEmpty(c.Query("data.id"), c.Query("id"), idString(body.Data.ID), idString(body.ID), lastSegment(body.Resource)),
		Action:     body.Action,
		Signature:  c.GetHeader("x-signature"),
		RequestID:  c.GetHeader("x-request-id"),
	}

	result, err := h.reconciler.Handle(c.Request.Context(), n)
	switch {
	case errors.Is(err, domain.ErrWebhookValidationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"received": false})
		return
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": err.Error()})
		return
	case err != nil:
		log.Printf("level=error msg=\"webhook processing error\" topic=%s resource_id=%s err=%q", n.Topic, n.ResourceID, err.Error())
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": result.Outcome})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

// lastSegment returns the id at the end of a resource URL such as
// https://api.mercadolibre.com/merchant_orders/123.
func lastSegment(resource string) string {
	resource = strings.TrimRight(strings.TrimSpace(resource), "/")
	if resource == "" {
		return ""
	}
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}
