package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// TransactionState represents where a transaction sits in its lifecycle
type TransactionState string

const (
	TransactionStateCreated     TransactionState = "CREATED"
	TransactionStateAuthorizing TransactionState = "AUTHORIZING"
	TransactionStateAuthorized  TransactionState = "AUTHORIZED"
	TransactionStateCapturing   TransactionState = "CAPTURING"
	TransactionStateCaptured    TransactionState = "CAPTURED"
	TransactionStateSettling    TransactionState = "SETTLING"
	TransactionStateSettled     TransactionState = "SETTLED"
	TransactionStateRefunding   TransactionState = "REFUNDING"
	TransactionStateRefunded    TransactionState = "REFUNDED"
	TransactionStateFailed      TransactionState = "FAILED"
)

// stateRank defines the canonical ordering used for monotonic advancement.
// An incoming event only applies when its target outranks the current state;
// anything else is acknowledged as a no-op so out-of-order delivery is safe.
var stateRank = map[TransactionState]int{
	TransactionStateCreated:     0,
	TransactionStateAuthorizing: 1,
	TransactionStateAuthorized:  2,
	TransactionStateCapturing:   3,
	TransactionStateCaptured:    4,
	TransactionStateSettling:    5,
	TransactionStateSettled:     6,
	TransactionStateRefunding:   7,
	TransactionStateRefunded:    8,
}

// IsValid returns true if the state is known
func (s TransactionState) IsValid() bool {
	if s == TransactionStateFailed {
		return true
	}
	_, ok := stateRank[s]
	return ok
}

// IsTerminal returns true for settled, refunded, and failed
func (s TransactionState) IsTerminal() bool {
	return s == TransactionStateSettled || s == TransactionStateRefunded || s == TransactionStateFailed
}

// Rank returns the monotonic rank of the state; failed has no rank
func (s TransactionState) Rank() int {
	return stateRank[s]
}

// String returns the string representation of TransactionState
func (s TransactionState) String() string {
	return string(s)
}

// TransitionOutcome describes the result of applying an event to a transaction
type TransitionOutcome struct {
	// Applied is false when the event was a stale or duplicate notification;
	// such events are acknowledged without effect
	Applied bool
	// From and To describe the committed transition when Applied is true
	From TransactionState
	To   TransactionState
}

// Transaction is the provider-facing execution record for a contribution.
// One contribution may have several transactions over time (retried recurring
// charges); each transaction owns exactly one provider-side payment attempt.
type Transaction struct {
	shared.BaseAggregateRoot

	ContributionID uuid.UUID  `gorm:"type:uuid;not null;index"`
	CampaignID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	DonorID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	Provider       ProviderID `gorm:"size:20;not null"`

	// ProviderRef is the provider-side reference, set once authorize succeeds
	ProviderRef string `gorm:"size:128;index"`

	State TransactionState `gorm:"size:20;not null;index"`

	// Amount requested; MovedAmount is what the provider actually moved
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	MovedAmount decimal.Decimal `gorm:"type:decimal(20,4)"`
	Currency    string          `gorm:"size:3;not null"`

	// Attempt distinguishes retried executions of the same contribution
	Attempt        int    `gorm:"not null;default:1"`
	IdempotencyKey string `gorm:"size:64;not null;uniqueIndex"`

	FailureReason string     `gorm:"size:255"`
	LastEventAt   *time.Time `gorm:""`
}

// TableName returns the database table name
func (Transaction) TableName() string {
	return "transactions"
}

// NewTransaction creates a transaction in the created state for one
// contribution attempt
func NewTransaction(
	contributionID, campaignID, donorID uuid.UUID,
	provider ProviderID,
	amount decimal.Decimal,
	currency string,
	attempt int,
) (*Transaction, error) {
	if contributionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CONTRIBUTION", "Contribution ID cannot be empty")
	}
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign ID cannot be empty")
	}
	if donorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DONOR", "Donor ID cannot be empty")
	}
	if !provider.IsValid() {
		return nil, shared.NewDomainError("INVALID_PROVIDER", "Unknown payment provider")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Transaction amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if attempt < 1 {
		return nil, shared.NewDomainError("INVALID_ATTEMPT", "Attempt number must be at least 1")
	}

	tx := &Transaction{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ContributionID:    contributionID,
		CampaignID:        campaignID,
		DonorID:           donorID,
		Provider:          provider,
		State:             TransactionStateCreated,
		Amount:            amount,
		MovedAmount:       decimal.Zero,
		Currency:          currency,
		Attempt:           attempt,
		IdempotencyKey:    DeriveIdempotencyKey(contributionID, attempt),
	}
	return tx, nil
}

// BeginAuthorize marks the transaction as waiting on the provider's
// authorize call
func (t *Transaction) BeginAuthorize() error {
	if t.State != TransactionStateCreated {
		return shared.ErrInvalidState
	}
	t.State = TransactionStateAuthorizing
	t.UpdatedAt = time.Now()
	return nil
}

// AttachProviderRef records the provider-side reference returned by authorize
func (t *Transaction) AttachProviderRef(ref string) error {
	if ref == "" {
		return shared.NewDomainError("INVALID_PROVIDER_REF", "Provider reference cannot be empty")
	}
	if t.ProviderRef != "" && t.ProviderRef != ref {
		return shared.NewDomainError("PROVIDER_REF_CONFLICT", "Transaction already bound to a different provider reference")
	}
	t.ProviderRef = ref
	t.UpdatedAt = time.Now()
	return nil
}

// BeginCapture marks the transaction as waiting on the provider's capture call
func (t *Transaction) BeginCapture() error {
	if t.State != TransactionStateAuthorized {
		return shared.ErrInvalidState
	}
	t.State = TransactionStateCapturing
	t.UpdatedAt = time.Now()
	return nil
}

// BeginRefund marks a settled transaction as waiting on the provider's refund
func (t *Transaction) BeginRefund() error {
	if t.State != TransactionStateSettled {
		return shared.ErrInvalidState
	}
	t.State = TransactionStateRefunding
	t.UpdatedAt = time.Now()
	return nil
}

// Apply advances the state machine with a provider event. Events whose target
// does not outrank the current state are stale duplicates from out-of-order
// delivery; they are acknowledged as no-ops, never rejected. The refund branch
// is only reachable from settled or refunding.
func (t *Transaction) Apply(event *ProviderEvent) (TransitionOutcome, error) {
	target := event.Kind.TargetState()
	if target == "" {
		return TransitionOutcome{}, shared.NewDomainError("INVALID_EVENT_KIND", "Unknown provider event kind")
	}

	outcome := TransitionOutcome{From: t.State, To: target}

	switch target {
	case TransactionStateFailed:
		// declines only terminate live transactions; a decline arriving after a
		// terminal state is stale
		if t.State.IsTerminal() {
			return outcome, nil
		}
		t.State = TransactionStateFailed
		t.FailureReason = event.DeclineReason
	case TransactionStateRefunded:
		if t.State != TransactionStateSettled && t.State != TransactionStateRefunding {
			// refund notification for a transaction that never settled here; ack
			// and leave reconciliation to sort it out
			return outcome, nil
		}
		t.State = TransactionStateRefunded
	default:
		if t.State == TransactionStateFailed || target.Rank() <= t.State.Rank() {
			return outcome, nil
		}
		t.State = target
	}

	if !event.Amount.IsZero() {
		t.MovedAmount = event.Amount
	}
	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now()
	}
	t.LastEventAt = &now
	t.UpdatedAt = time.Now()

	outcome.Applied = true
	outcome.To = t.State
	t.recordTransitionEvent(outcome)
	return outcome, nil
}

// MarkFailed terminally fails the transaction for a non-provider reason
// (retry ceiling exhausted, invariant breach)
func (t *Transaction) MarkFailed(reason string) error {
	if t.State.IsTerminal() {
		return shared.ErrInvalidState
	}
	from := t.State
	t.State = TransactionStateFailed
	t.FailureReason = reason
	t.UpdatedAt = time.Now()
	t.recordTransitionEvent(TransitionOutcome{Applied: true, From: from, To: TransactionStateFailed})
	return nil
}

// SettledAmount returns the amount available to refund: the moved amount once
// settled, zero otherwise
func (t *Transaction) SettledAmount() decimal.Decimal {
	if t.State != TransactionStateSettled && t.State != TransactionStateRefunding && t.State != TransactionStateRefunded {
		return decimal.Zero
	}
	if t.MovedAmount.IsPositive() {
		return t.MovedAmount
	}
	return t.Amount
}

func (t *Transaction) recordTransitionEvent(outcome TransitionOutcome) {
	switch outcome.To {
	case TransactionStateCaptured:
		t.AddDomainEvent(NewTransactionCapturedEvent(t))
	case TransactionStateSettled:
		t.AddDomainEvent(NewTransactionSettledEvent(t))
	case TransactionStateRefunded:
		t.AddDomainEvent(NewTransactionRefundedEvent(t))
	case TransactionStateFailed:
		t.AddDomainEvent(NewTransactionFailedEvent(t))
	}
}
