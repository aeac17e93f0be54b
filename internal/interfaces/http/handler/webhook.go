package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/giveflow/backend/internal/application/webhook"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// maxCallbackPayloadSize caps the raw body a provider may deliver
const maxCallbackPayloadSize = 65536

// WebhookHandler receives provider callbacks and hands them to the ingestion
// pipeline. The handler never retries and never blocks on downstream work: a
// verified event is acknowledged once it is durably persisted.
type WebhookHandler struct {
	BaseHandler
	ingestionService *webhook.IngestionService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingestionService *webhook.IngestionService) *WebhookHandler {
	return &WebhookHandler{ingestionService: ingestionService}
}

// signatureHeaderFor returns the header each rail signs its payloads under
func signatureHeaderFor(provider payment.ProviderID) string {
	if provider == payment.ProviderCard {
		return "Stripe-Signature"
	}
	return "X-Signature"
}

// Receive handles POST /webhooks/:provider
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := payment.ProviderID(strings.ToUpper(c.Param("provider")))
	if !provider.IsValid() {
		h.NotFound(c, "Unknown payment provider")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackPayloadSize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > maxCallbackPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Payload too large")
		return
	}
	if len(payload) == 0 {
		h.BadRequest(c, "Empty payload")
		return
	}

	signature := c.GetHeader(signatureHeaderFor(provider))
	if signature == "" {
		h.Unauthorized(c, "Missing signature header")
		return
	}

	result, err := h.ingestionService.Ingest(c.Request.Context(), provider, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Invalid signature")
		case errors.Is(err, payment.ErrUnknownProvider):
			h.NotFound(c, "Unknown payment provider")
		default:
			// the event is persisted; recovery retries processing later
			h.InternalError(c, "Failed to process callback")
		}
		return
	}

	h.Success(c, result)
}
