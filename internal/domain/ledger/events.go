package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// EntryAppendedEventType is the bus type name for ledger appends
const EntryAppendedEventType = "LedgerEntryAppended"

// EntryAppendedEvent is raised after an entry is durably appended. Downstream
// consumers (compliance, notification) key off EntryID; re-deliveries carry
// the same entry identity so consumers can detect repeats.
type EntryAppendedEvent struct {
	shared.BaseDomainEvent
	EntryID       uuid.UUID       `json:"entry_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	CampaignID    uuid.UUID       `json:"campaign_id"`
	DonorID       uuid.UUID       `json:"donor_id"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PredecessorID *uuid.UUID      `json:"predecessor_id,omitempty"`
}

// EventType returns the event type name
func (e *EntryAppendedEvent) EventType() string {
	return EntryAppendedEventType
}

// NewEntryAppendedEvent creates a new EntryAppendedEvent
func NewEntryAppendedEvent(entry *Entry) *EntryAppendedEvent {
	return &EntryAppendedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EntryAppendedEventType, "LedgerEntry", entry.ID),
		EntryID:         entry.ID,
		TransactionID:   entry.TransactionID,
		CampaignID:      entry.CampaignID,
		DonorID:         entry.DonorID,
		Kind:            entry.Kind,
		Amount:          entry.Amount,
		Currency:        entry.Currency,
		PredecessorID:   entry.PredecessorID,
	}
}
