package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/infrastructure/config"
)

const (
	cryptoChargesPath = "/v1/charges"
	cryptoReleasePath = "/v1/charges/%s/release"
	cryptoRefundsPath = "/v1/charges/%s/refund"
	cryptoQueryPath   = "/v1/charges/%s"
)

// cryptoNotification is the callback payload the crypto custodian posts.
// Confirmations count how deep the payment transaction is buried in the chain.
type cryptoNotification struct {
	EventID       string          `json:"event_id"`
	ChargeRef     string          `json:"charge_ref"`
	Status        string          `json:"status"`
	Confirmations int             `json:"confirmations"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CryptoAdapter implements payment.ProviderAdapter for the crypto settlement
// rail. A confirmed charge only counts as settled once it has accumulated the
// configured number of chain confirmations; before that it is merely captured.
type CryptoAdapter struct {
	client                *signedClient
	confirmationThreshold int
}

// NewCryptoAdapter creates a crypto rail adapter
func NewCryptoAdapter(cfg config.CryptoProviderConfig, callTimeout time.Duration) (*CryptoAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crypto provider: base URL is required")
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	threshold := cfg.ConfirmationThreshold
	if threshold <= 0 {
		threshold = 6
	}
	return &CryptoAdapter{
		client: &signedClient{
			baseURL:    cfg.BaseURL,
			apiKey:     cfg.APIKey,
			secretKey:  cfg.SecretKey,
			httpClient: &http.Client{Timeout: callTimeout},
		},
		confirmationThreshold: threshold,
	}, nil
}

// ProviderID returns the rail this adapter serves
func (a *CryptoAdapter) ProviderID() payment.ProviderID {
	return payment.ProviderCrypto
}

// Authorize creates a custodial charge against the donor's wallet
func (a *CryptoAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, method payment.MethodDescriptor, idempotencyKey string) (*payment.AuthorizeResult, error) {
	body := map[string]any{
		"amount":   amount,
		"currency": currency,
		"asset":    method.Scheme,
		"wallet":   method.Token,
	}
	var resp struct {
		ChargeRef string `json:"charge_ref"`
		Status    string `json:"status"`
	}
	if err := a.client.do(ctx, http.MethodPost, cryptoChargesPath, body, idempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &payment.AuthorizeResult{
		ProviderRef: resp.ChargeRef,
		// chain confirmation is always asynchronous
		Pending: true,
	}, nil
}

// Capture releases the custodial hold for on-chain settlement
func (a *CryptoAdapter) Capture(ctx context.Context, providerRef string) (*payment.OperationResult, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf(cryptoReleasePath, providerRef)
	if err := a.client.do(ctx, http.MethodPost, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return &payment.OperationResult{
		ProviderRef: providerRef,
		Accepted:    true,
		Raw:         resp.Status,
	}, nil
}

// Refund sends part or all of a settled charge back to the donor's wallet
func (a *CryptoAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
	body := map[string]any{"amount": amount}
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf(cryptoRefundsPath, providerRef)
	if err := a.client.do(ctx, http.MethodPost, path, body, "", &resp); err != nil {
		return nil, err
	}
	return &payment.OperationResult{
		ProviderRef: providerRef,
		Accepted:    true,
		Raw:         resp.Status,
	}, nil
}

// VerifyCallback checks the HMAC signature and parses the notification
func (a *CryptoAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	if !verifyPayload(a.client.secretKey, payload, signature) {
		return nil, payment.ErrInvalidSignature
	}

	var note cryptoNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, payment.ErrInvalidSignature
	}
	if note.EventID == "" || note.ChargeRef == "" {
		return nil, payment.ErrInvalidSignature
	}

	kind, ok := a.eventKind(note.Status, note.Confirmations)
	if !ok {
		return nil, fmt.Errorf("crypto provider: unhandled status %q", note.Status)
	}

	return &payment.ProviderEvent{
		Provider:      payment.ProviderCrypto,
		EventID:       note.EventID,
		ProviderRef:   note.ChargeRef,
		Kind:          kind,
		Amount:        note.Amount,
		Currency:      note.Currency,
		DeclineReason: note.Reason,
		OccurredAt:    note.OccurredAt,
		Raw:           string(payload),
	}, nil
}

// Reconcile queries the custodian for the current state of a charge
func (a *CryptoAdapter) Reconcile(ctx context.Context, providerRef string) (*payment.ProviderEvent, error) {
	var resp cryptoNotification
	path := fmt.Sprintf(cryptoQueryPath, providerRef)
	if err := a.client.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}

	kind, ok := a.eventKind(resp.Status, resp.Confirmations)
	if !ok {
		return nil, fmt.Errorf("crypto provider: no transition for status %q", resp.Status)
	}

	return &payment.ProviderEvent{
		Provider:      payment.ProviderCrypto,
		EventID:       fmt.Sprintf("recon:%s:%s:%d", providerRef, resp.Status, resp.Confirmations),
		ProviderRef:   providerRef,
		Kind:          kind,
		Amount:        resp.Amount,
		Currency:      resp.Currency,
		DeclineReason: resp.Reason,
		OccurredAt:    time.Now(),
	}, nil
}

// eventKind maps custodian statuses to provider-neutral kinds. A confirmed
// charge below the confirmation threshold stays captured; crossing the
// threshold settles it.
func (a *CryptoAdapter) eventKind(status string, confirmations int) (payment.EventKind, bool) {
	switch status {
	case "accepted":
		return payment.EventAuthorized, true
	case "broadcast":
		return payment.EventCaptured, true
	case "confirmed":
		if confirmations >= a.confirmationThreshold {
			return payment.EventSettled, true
		}
		return payment.EventCaptured, true
	case "refunded":
		return payment.EventRefunded, true
	case "rejected", "expired":
		return payment.EventDeclined, true
	}
	return "", false
}

// Ensure CryptoAdapter implements ProviderAdapter
var _ payment.ProviderAdapter = (*CryptoAdapter)(nil)
