package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/application/webhook"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// verifyOnlyAdapter rejects every signature except "valid"
type verifyOnlyAdapter struct {
	provider payment.ProviderID
}

func (a *verifyOnlyAdapter) ProviderID() payment.ProviderID { return a.provider }

func (a *verifyOnlyAdapter) Authorize(context.Context, decimal.Decimal, string, payment.MethodDescriptor, string) (*payment.AuthorizeResult, error) {
	panic("not used")
}

func (a *verifyOnlyAdapter) Capture(context.Context, string) (*payment.OperationResult, error) {
	panic("not used")
}

func (a *verifyOnlyAdapter) Refund(context.Context, string, decimal.Decimal) (*payment.OperationResult, error) {
	panic("not used")
}

func (a *verifyOnlyAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	return &payment.ProviderEvent{
		Provider:    a.provider,
		EventID:     "evt-1",
		ProviderRef: "ref-1",
		Kind:        payment.EventAuthorized,
		OccurredAt:  time.Now(),
	}, nil
}

func (a *verifyOnlyAdapter) Reconcile(context.Context, string) (*payment.ProviderEvent, error) {
	panic("not used")
}

// seenStore reports every key as already processed
type seenStore struct{}

func (seenStore) MarkProcessed(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (seenStore) IsProcessed(context.Context, string) (bool, error) { return true, nil }
func (seenStore) Close() error                                      { return nil }

func newWebhookTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ingestion := webhook.NewIngestionService(webhook.IngestionServiceConfig{
		Adapters:  []payment.ProviderAdapter{&verifyOnlyAdapter{provider: payment.ProviderCard}},
		FastDedup: seenStore{},
	})
	h := NewWebhookHandler(ingestion)

	r := gin.New()
	r.POST("/webhooks/:provider", h.Receive)
	return r
}

func postCallback(r *gin.Engine, provider, signature, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookUnknownProviderIs404(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "paypal", "valid", `{}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookMissingSignatureIs401(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "card", "", `{"type":"charge.succeeded"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookInvalidSignatureIs401(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "card", "forged", `{"type":"charge.succeeded"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidSignature, resp.Error.Code)
}

func TestWebhookEmptyBodyIs400(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "card", "valid", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookOversizedBodyIs413(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "card", "valid", strings.Repeat("x", maxCallbackPayloadSize+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWebhookDuplicateIsAcknowledged(t *testing.T) {
	// the fast dedup tier reports the event as seen, so the callback is
	// acknowledged without touching the state machine
	r := newWebhookTestRouter(t)

	w := postCallback(r, "card", "valid", `{"type":"charge.succeeded"}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result webhook.IngestResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, webhook.StatusDuplicate, result.Status)
}

func TestWebhookProviderParamIsCaseInsensitive(t *testing.T) {
	r := newWebhookTestRouter(t)

	w := postCallback(r, "CARD", "forged", `{}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
