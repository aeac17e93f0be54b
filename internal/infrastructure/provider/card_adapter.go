package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/infrastructure/config"
)

// CardAdapter implements payment.ProviderAdapter for the card rail on top of
// Stripe PaymentIntents. Authorize places a manual-capture hold; Capture
// confirms it.
type CardAdapter struct {
	api           *client.API
	webhookSecret string
}

// NewCardAdapter creates a card rail adapter
func NewCardAdapter(cfg config.CardProviderConfig) (*CardAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("card provider: API key is required")
	}
	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	return &CardAdapter{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// ProviderID returns the rail this adapter serves
func (a *CardAdapter) ProviderID() payment.ProviderID {
	return payment.ProviderCard
}

// Authorize places a manual-capture hold for the given amount. The caller's
// idempotency key is passed straight to Stripe, so a retried call lands on the
// same PaymentIntent.
func (a *CardAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, method payment.MethodDescriptor, idempotencyKey string) (*payment.AuthorizeResult, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Currency:      stripe.String(strings.ToLower(currency)),
		PaymentMethod: stripe.String(method.Token),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	params.SetIdempotencyKey(idempotencyKey)

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, a.translateError(err)
	}

	return &payment.AuthorizeResult{
		ProviderRef: intent.ID,
		Pending:     intent.Status != stripe.PaymentIntentStatusRequiresCapture,
	}, nil
}

// Capture confirms a previously authorized hold
func (a *CardAdapter) Capture(ctx context.Context, providerRef string) (*payment.OperationResult, error) {
	intent, err := a.api.PaymentIntents.Capture(providerRef, &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, a.translateError(err)
	}
	return &payment.OperationResult{
		ProviderRef: intent.ID,
		Accepted:    true,
		Raw:         string(intent.Status),
	}, nil
}

// Refund returns part or all of a settled payment
func (a *CardAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
	refund, err := a.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(providerRef),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	})
	if err != nil {
		return nil, a.translateError(err)
	}
	return &payment.OperationResult{
		ProviderRef: providerRef,
		Accepted:    true,
		Raw:         string(refund.Status),
	}, nil
}

// VerifyCallback checks the Stripe signature header and translates the event
// into the provider-neutral shape
func (a *CardAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signature, a.webhookSecret)
	if err != nil {
		return nil, payment.ErrInvalidSignature
	}

	kind, ok := cardEventKind(string(stripeEvent.Type))
	if !ok {
		return nil, fmt.Errorf("card provider: unhandled event type %q", stripeEvent.Type)
	}

	var object struct {
		ID             string `json:"id"`
		PaymentIntent  string `json:"payment_intent"`
		Amount         int64  `json:"amount"`
		AmountRefunded int64  `json:"amount_refunded"`
		Currency       string `json:"currency"`
		FailureMessage string `json:"failure_message"`
	}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &object); err != nil {
		return nil, fmt.Errorf("card provider: failed to parse event object: %w", err)
	}

	providerRef := object.PaymentIntent
	if providerRef == "" {
		providerRef = object.ID
	}
	amount := object.Amount
	if kind == payment.EventRefunded && object.AmountRefunded > 0 {
		amount = object.AmountRefunded
	}

	return &payment.ProviderEvent{
		Provider:      payment.ProviderCard,
		EventID:       stripeEvent.ID,
		ProviderRef:   providerRef,
		Kind:          kind,
		Amount:        fromMinorUnits(amount),
		Currency:      strings.ToUpper(object.Currency),
		DeclineReason: object.FailureMessage,
		OccurredAt:    time.Unix(stripeEvent.Created, 0),
		Raw:           string(payload),
	}, nil
}

// Reconcile queries Stripe for the current state of a PaymentIntent. The
// event identity is derived from the intent and its status, so re-polling the
// same state dedups downstream.
func (a *CardAdapter) Reconcile(ctx context.Context, providerRef string) (*payment.ProviderEvent, error) {
	intent, err := a.api.PaymentIntents.Get(providerRef, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, a.translateError(err)
	}

	var kind payment.EventKind
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		kind = payment.EventAuthorized
	case stripe.PaymentIntentStatusProcessing:
		kind = payment.EventCaptured
	case stripe.PaymentIntentStatusSucceeded:
		kind = payment.EventSettled
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		kind = payment.EventDeclined
	default:
		return nil, fmt.Errorf("card provider: no transition for intent status %q", intent.Status)
	}

	return &payment.ProviderEvent{
		Provider:    payment.ProviderCard,
		EventID:     fmt.Sprintf("recon:%s:%s", intent.ID, intent.Status),
		ProviderRef: intent.ID,
		Kind:        kind,
		Amount:      fromMinorUnits(intent.Amount),
		Currency:    strings.ToUpper(string(intent.Currency)),
		OccurredAt:  time.Now(),
	}, nil
}

// translateError maps Stripe errors onto the provider error taxonomy
func (a *CardAdapter) translateError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", payment.ErrProviderUnavailable, err)
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s", payment.ErrProviderDeclined, stripeErr.Msg)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", payment.ErrProviderTransient, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s", payment.ErrProviderDeclined, stripeErr.Msg)
	}
}

// cardEventKind maps Stripe event types to provider-neutral kinds
func cardEventKind(eventType string) (payment.EventKind, bool) {
	switch eventType {
	case "payment_intent.amount_capturable_updated":
		return payment.EventAuthorized, true
	case "payment_intent.succeeded":
		return payment.EventCaptured, true
	case "charge.succeeded":
		return payment.EventSettled, true
	case "charge.refunded":
		return payment.EventRefunded, true
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return payment.EventDeclined, true
	}
	return "", false
}

// toMinorUnits converts a decimal major-unit amount to integer cents
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// fromMinorUnits converts integer cents back to a decimal major-unit amount
func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100))
}

// Ensure CardAdapter implements ProviderAdapter
var _ payment.ProviderAdapter = (*CardAdapter)(nil)
