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
	bankDebitsPath  = "/v1/debits"
	bankCapturePath = "/v1/debits/%s/capture"
	bankRefundsPath = "/v1/refunds"
	bankQueryPath   = "/v1/debits/%s"
)

// bankNotification is the callback payload the bank rail posts
type bankNotification struct {
	EventID    string          `json:"event_id"`
	DebitRef   string          `json:"debit_ref"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// BankAdapter implements payment.ProviderAdapter for the bank transfer rail.
// The rail speaks signed JSON over HTTP; direct debits authorize instantly
// but settle asynchronously through callbacks.
type BankAdapter struct {
	client *signedClient
}

// NewBankAdapter creates a bank rail adapter
func NewBankAdapter(cfg config.HTTPProviderConfig, callTimeout time.Duration) (*BankAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bank provider: base URL is required")
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &BankAdapter{
		client: &signedClient{
			baseURL:    cfg.BaseURL,
			apiKey:     cfg.APIKey,
			secretKey:  cfg.SecretKey,
			httpClient: &http.Client{Timeout: callTimeout},
		},
	}, nil
}

// ProviderID returns the rail this adapter serves
func (a *BankAdapter) ProviderID() payment.ProviderID {
	return payment.ProviderBank
}

// Authorize initiates a direct debit hold
func (a *BankAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, method payment.MethodDescriptor, idempotencyKey string) (*payment.AuthorizeResult, error) {
	body := map[string]any{
		"amount":   amount,
		"currency": currency,
		"scheme":   method.Scheme,
		"mandate":  method.Token,
	}
	var resp struct {
		DebitRef string `json:"debit_ref"`
		Status   string `json:"status"`
	}
	if err := a.client.do(ctx, http.MethodPost, bankDebitsPath, body, idempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &payment.AuthorizeResult{
		ProviderRef: resp.DebitRef,
		// bank debits always confirm asynchronously
		Pending: true,
	}, nil
}

// Capture confirms a previously authorized debit
func (a *BankAdapter) Capture(ctx context.Context, providerRef string) (*payment.OperationResult, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf(bankCapturePath, providerRef)
	if err := a.client.do(ctx, http.MethodPost, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return &payment.OperationResult{
		ProviderRef: providerRef,
		Accepted:    true,
		Raw:         resp.Status,
	}, nil
}

// Refund returns part or all of a settled debit
func (a *BankAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
	body := map[string]any{
		"debit_ref": providerRef,
		"amount":    amount,
	}
	var resp struct {
		RefundRef string `json:"refund_ref"`
		Status    string `json:"status"`
	}
	if err := a.client.do(ctx, http.MethodPost, bankRefundsPath, body, "", &resp); err != nil {
		return nil, err
	}
	return &payment.OperationResult{
		ProviderRef: providerRef,
		Accepted:    true,
		Raw:         resp.Status,
	}, nil
}

// VerifyCallback checks the HMAC signature and parses the notification
func (a *BankAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	if !verifyPayload(a.client.secretKey, payload, signature) {
		return nil, payment.ErrInvalidSignature
	}

	var note bankNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, payment.ErrInvalidSignature
	}
	if note.EventID == "" || note.DebitRef == "" {
		return nil, payment.ErrInvalidSignature
	}

	kind, ok := bankEventKind(note.Status)
	if !ok {
		return nil, fmt.Errorf("bank provider: unhandled status %q", note.Status)
	}

	return &payment.ProviderEvent{
		Provider:      payment.ProviderBank,
		EventID:       note.EventID,
		ProviderRef:   note.DebitRef,
		Kind:          kind,
		Amount:        note.Amount,
		Currency:      note.Currency,
		DeclineReason: note.Reason,
		OccurredAt:    note.OccurredAt,
		Raw:           string(payload),
	}, nil
}

// Reconcile queries the rail for the current state of a debit
func (a *BankAdapter) Reconcile(ctx context.Context, providerRef string) (*payment.ProviderEvent, error) {
	var resp bankNotification
	path := fmt.Sprintf(bankQueryPath, providerRef)
	if err := a.client.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}

	kind, ok := bankEventKind(resp.Status)
	if !ok {
		return nil, fmt.Errorf("bank provider: no transition for status %q", resp.Status)
	}

	return &payment.ProviderEvent{
		Provider:      payment.ProviderBank,
		EventID:       fmt.Sprintf("recon:%s:%s", providerRef, resp.Status),
		ProviderRef:   providerRef,
		Kind:          kind,
		Amount:        resp.Amount,
		Currency:      resp.Currency,
		DeclineReason: resp.Reason,
		OccurredAt:    time.Now(),
	}, nil
}

// bankEventKind maps rail statuses to provider-neutral kinds
func bankEventKind(status string) (payment.EventKind, bool) {
	switch status {
	case "authorized":
		return payment.EventAuthorized, true
	case "captured":
		return payment.EventCaptured, true
	case "settled":
		return payment.EventSettled, true
	case "refunded":
		return payment.EventRefunded, true
	case "rejected", "returned":
		return payment.EventDeclined, true
	}
	return "", false
}

// Ensure BankAdapter implements ProviderAdapter
var _ payment.ProviderAdapter = (*BankAdapter)(nil)
