package payment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// TransactionCapturedEvent is raised when a capture is confirmed
type TransactionCapturedEvent struct {
	shared.BaseDomainEvent
	ContributionID uuid.UUID       `json:"contribution_id"`
	CampaignID     uuid.UUID       `json:"campaign_id"`
	DonorID        uuid.UUID       `json:"donor_id"`
	Provider       ProviderID      `json:"provider"`
	ProviderRef    string          `json:"provider_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// EventType returns the event type name
func (e *TransactionCapturedEvent) EventType() string {
	return "TransactionCaptured"
}

// NewTransactionCapturedEvent creates a new TransactionCapturedEvent
func NewTransactionCapturedEvent(t *Transaction) *TransactionCapturedEvent {
	return &TransactionCapturedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TransactionCaptured", "Transaction", t.ID),
		ContributionID:  t.ContributionID,
		CampaignID:      t.CampaignID,
		DonorID:         t.DonorID,
		Provider:        t.Provider,
		ProviderRef:     t.ProviderRef,
		Amount:          t.MovedAmount,
		Currency:        t.Currency,
	}
}

// TransactionSettledEvent is raised when the provider confirms final settlement
type TransactionSettledEvent struct {
	shared.BaseDomainEvent
	ContributionID uuid.UUID       `json:"contribution_id"`
	CampaignID     uuid.UUID       `json:"campaign_id"`
	DonorID        uuid.UUID       `json:"donor_id"`
	Provider       ProviderID      `json:"provider"`
	ProviderRef    string          `json:"provider_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// EventType returns the event type name
func (e *TransactionSettledEvent) EventType() string {
	return "TransactionSettled"
}

// NewTransactionSettledEvent creates a new TransactionSettledEvent
func NewTransactionSettledEvent(t *Transaction) *TransactionSettledEvent {
	return &TransactionSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TransactionSettled", "Transaction", t.ID),
		ContributionID:  t.ContributionID,
		CampaignID:      t.CampaignID,
		DonorID:         t.DonorID,
		Provider:        t.Provider,
		ProviderRef:     t.ProviderRef,
		Amount:          t.MovedAmount,
		Currency:        t.Currency,
	}
}

// TransactionRefundedEvent is raised when a refund completes
type TransactionRefundedEvent struct {
	shared.BaseDomainEvent
	ContributionID uuid.UUID       `json:"contribution_id"`
	CampaignID     uuid.UUID       `json:"campaign_id"`
	DonorID        uuid.UUID       `json:"donor_id"`
	Provider       ProviderID      `json:"provider"`
	ProviderRef    string          `json:"provider_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// EventType returns the event type name
func (e *TransactionRefundedEvent) EventType() string {
	return "TransactionRefunded"
}

// NewTransactionRefundedEvent creates a new TransactionRefundedEvent
func NewTransactionRefundedEvent(t *Transaction) *TransactionRefundedEvent {
	return &TransactionRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TransactionRefunded", "Transaction", t.ID),
		ContributionID:  t.ContributionID,
		CampaignID:      t.CampaignID,
		DonorID:         t.DonorID,
		Provider:        t.Provider,
		ProviderRef:     t.ProviderRef,
		Amount:          t.MovedAmount,
		Currency:        t.Currency,
	}
}

// TransactionFailedEvent is raised when a transaction terminally fails.
// Notification collaborators consume this to surface the outcome to the donor.
type TransactionFailedEvent struct {
	shared.BaseDomainEvent
	ContributionID uuid.UUID  `json:"contribution_id"`
	CampaignID     uuid.UUID  `json:"campaign_id"`
	DonorID        uuid.UUID  `json:"donor_id"`
	Provider       ProviderID `json:"provider"`
	Reason         string     `json:"reason"`
}

// EventType returns the event type name
func (e *TransactionFailedEvent) EventType() string {
	return "TransactionFailed"
}

// NewTransactionFailedEvent creates a new TransactionFailedEvent
func NewTransactionFailedEvent(t *Transaction) *TransactionFailedEvent {
	return &TransactionFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TransactionFailed", "Transaction", t.ID),
		ContributionID:  t.ContributionID,
		CampaignID:      t.CampaignID,
		DonorID:         t.DonorID,
		Provider:        t.Provider,
		Reason:          t.FailureReason,
	}
}
