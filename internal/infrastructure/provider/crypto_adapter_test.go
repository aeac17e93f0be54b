package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/infrastructure/config"
)

func newCryptoAdapterForTest(t *testing.T, handler http.Handler) *CryptoAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewCryptoAdapter(config.CryptoProviderConfig{
		HTTPProviderConfig: config.HTTPProviderConfig{
			BaseURL:   server.URL,
			APIKey:    "ak_test",
			SecretKey: "sk_test",
		},
		ConfirmationThreshold: 6,
	}, 5*time.Second)
	require.NoError(t, err)
	return adapter
}

func cryptoCallback(t *testing.T, adapter *CryptoAdapter, note cryptoNotification) (*payment.ProviderEvent, error) {
	t.Helper()
	payload, err := json.Marshal(note)
	require.NoError(t, err)
	return adapter.VerifyCallback(payload, signPayload("sk_test", payload))
}

func TestCryptoConfirmationThreshold(t *testing.T) {
	adapter := newCryptoAdapterForTest(t, http.NotFoundHandler())

	// below the threshold a confirmed charge is only captured
	event, err := cryptoCallback(t, adapter, cryptoNotification{
		EventID:       "evt_001",
		ChargeRef:     "ch_001",
		Status:        "confirmed",
		Confirmations: 3,
		Amount:        decimal.NewFromFloat(25.00),
		Currency:      "USD",
		OccurredAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, payment.EventCaptured, event.Kind)

	// crossing the threshold settles it
	event, err = cryptoCallback(t, adapter, cryptoNotification{
		EventID:       "evt_002",
		ChargeRef:     "ch_001",
		Status:        "confirmed",
		Confirmations: 6,
		Amount:        decimal.NewFromFloat(25.00),
		Currency:      "USD",
		OccurredAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, payment.EventSettled, event.Kind)
}

func TestCryptoVerifyCallbackRejectsForgery(t *testing.T) {
	adapter := newCryptoAdapterForTest(t, http.NotFoundHandler())

	payload := []byte(`{"event_id":"evt_001","charge_ref":"ch_001","status":"confirmed"}`)
	_, err := adapter.VerifyCallback(payload, "deadbeef")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestCryptoAuthorize(t *testing.T) {
	adapter := newCryptoAdapterForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "idem_abc", r.Header.Get("Idempotency-Key"))
		json.NewEncoder(w).Encode(map[string]string{"charge_ref": "ch_001", "status": "accepted"})
	}))

	res, err := adapter.Authorize(context.Background(), decimal.NewFromFloat(25.00), "USD",
		payment.MethodDescriptor{Scheme: "btc", Token: "wallet_001"}, "idem_abc")
	require.NoError(t, err)
	assert.Equal(t, "ch_001", res.ProviderRef)
	assert.True(t, res.Pending)
}

func TestCryptoReconcileDerivesDedupableIdentity(t *testing.T) {
	adapter := newCryptoAdapterForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cryptoNotification{
			ChargeRef:     "ch_001",
			Status:        "confirmed",
			Confirmations: 8,
			Amount:        decimal.NewFromFloat(25.00),
			Currency:      "USD",
		})
	}))

	event, err := adapter.Reconcile(context.Background(), "ch_001")
	require.NoError(t, err)
	assert.Equal(t, payment.EventSettled, event.Kind)
	assert.Equal(t, "recon:ch_001:confirmed:8", event.EventID)

	// the same chain state reconciled twice carries the same identity
	again, err := adapter.Reconcile(context.Background(), "ch_001")
	require.NoError(t, err)
	assert.Equal(t, event.EventID, again.EventID)
}

func TestCryptoEventKindTerminalStatuses(t *testing.T) {
	adapter := newCryptoAdapterForTest(t, http.NotFoundHandler())

	kind, ok := adapter.eventKind("rejected", 0)
	require.True(t, ok)
	assert.Equal(t, payment.EventDeclined, kind)

	kind, ok = adapter.eventKind("refunded", 10)
	require.True(t, ok)
	assert.Equal(t, payment.EventRefunded, kind)

	_, ok = adapter.eventKind("unknown", 0)
	assert.False(t, ok)
}
