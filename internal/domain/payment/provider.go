package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Provider errors
// ---------------------------------------------------------------------------

var (
	// ErrInvalidSignature indicates a callback whose signature could not be verified.
	// Callbacks failing verification are dropped at the boundary and never processed.
	ErrInvalidSignature = errors.New("provider: invalid callback signature")

	// ErrProviderTransient indicates a network or timeout failure; the operation
	// may be retried with backoff
	ErrProviderTransient = errors.New("provider: transient failure")

	// ErrProviderDeclined indicates the provider rejected the payment as a
	// business decision; the transaction is terminally failed
	ErrProviderDeclined = errors.New("provider: payment declined")

	// ErrProviderUnavailable indicates the provider endpoint could not be reached
	ErrProviderUnavailable = errors.New("provider: unavailable")

	// ErrUnknownProvider indicates no adapter is registered for the provider ID
	ErrUnknownProvider = errors.New("provider: unknown provider")
)

// IsTransient reports whether err should be retried with backoff rather than
// treated as a terminal failure
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderTransient) || errors.Is(err, ErrProviderUnavailable)
}

// ---------------------------------------------------------------------------
// Provider identity
// ---------------------------------------------------------------------------

// ProviderID identifies a payment rail
type ProviderID string

const (
	// ProviderCard is the card network rail
	ProviderCard ProviderID = "CARD"
	// ProviderBank is the bank transfer rail
	ProviderBank ProviderID = "BANK"
	// ProviderCrypto is the crypto settlement rail
	ProviderCrypto ProviderID = "CRYPTO"
)

// IsValid returns true if the provider ID is known
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderCard, ProviderBank, ProviderCrypto:
		return true
	}
	return false
}

// String returns the string representation of ProviderID
func (p ProviderID) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// Adapter contract
// ---------------------------------------------------------------------------

// MethodDescriptor describes the donor's payment instrument in provider terms
// (an opaque token plus a scheme hint); the core never stores raw credentials
type MethodDescriptor struct {
	Scheme string `json:"scheme"` // e.g. "visa", "sepa_debit", "btc"
	Token  string `json:"token"`  // provider-issued instrument token
}

// AuthorizeResult is the outcome of an authorize call
type AuthorizeResult struct {
	ProviderRef string // provider-side reference for the transaction
	Pending     bool   // true when the provider confirms asynchronously
}

// OperationResult is the outcome of a capture or refund call
type OperationResult struct {
	ProviderRef string
	Accepted    bool
	Raw         string // raw provider response for audit
}

// ProviderEvent is a verified, provider-neutral callback notification.
// The adapter translates the rail-specific payload into this shape; everything
// downstream is provider-agnostic.
type ProviderEvent struct {
	Provider      ProviderID      `json:"provider"`
	EventID       string          `json:"event_id"`     // provider-side event identity, dedup input
	ProviderRef   string          `json:"provider_ref"` // provider-side transaction reference
	Kind          EventKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DeclineReason string          `json:"decline_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Raw           string          `json:"raw,omitempty"`
}

// EventKind classifies what a provider notification reports
type EventKind string

const (
	EventAuthorized EventKind = "AUTHORIZED"
	EventCaptured   EventKind = "CAPTURED"
	EventSettled    EventKind = "SETTLED"
	EventRefunded   EventKind = "REFUNDED"
	EventDeclined   EventKind = "DECLINED"
)

// IsValid returns true if the event kind is known
func (k EventKind) IsValid() bool {
	switch k {
	case EventAuthorized, EventCaptured, EventSettled, EventRefunded, EventDeclined:
		return true
	}
	return false
}

// TargetState maps the event kind to the transaction state it drives toward
func (k EventKind) TargetState() TransactionState {
	switch k {
	case EventAuthorized:
		return TransactionStateAuthorized
	case EventCaptured:
		return TransactionStateCaptured
	case EventSettled:
		return TransactionStateSettled
	case EventRefunded:
		return TransactionStateRefunded
	case EventDeclined:
		return TransactionStateFailed
	default:
		return ""
	}
}

// ProviderAdapter is the contract every payment rail implementation satisfies.
// Adapters confine their side effects to network calls; no local state is
// mutated here. Implementations must honor context deadlines so callers can
// bound how long an external call may block.
type ProviderAdapter interface {
	// ProviderID returns the rail this adapter serves
	ProviderID() ProviderID

	// Authorize places a hold for the given amount. The idempotency key must be
	// passed through to the provider so a network-level retry of the same call
	// never produces a duplicate charge.
	Authorize(ctx context.Context, amount decimal.Decimal, currency string, method MethodDescriptor, idempotencyKey string) (*AuthorizeResult, error)

	// Capture confirms a previously authorized hold
	Capture(ctx context.Context, providerRef string) (*OperationResult, error)

	// Refund returns part or all of a settled payment
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*OperationResult, error)

	// VerifyCallback checks the payload signature and parses the notification.
	// Returns ErrInvalidSignature when the payload is forged or malformed.
	VerifyCallback(payload []byte, signature string) (*ProviderEvent, error)

	// Reconcile queries the provider for the current state of a transaction.
	// Used by the reconciliation poller for transactions stuck without a
	// terminal callback.
	Reconcile(ctx context.Context, providerRef string) (*ProviderEvent, error)
}

// DeriveIdempotencyKey builds the deterministic idempotency key for a provider
// call from the contribution identity and attempt number. The same
// (contribution, attempt) pair always yields the same key, so a retried call
// is recognized by the provider as a repeat.
func DeriveIdempotencyKey(contributionID uuid.UUID, attempt int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", contributionID, attempt))
	return hex.EncodeToString(sum[:16])
}
