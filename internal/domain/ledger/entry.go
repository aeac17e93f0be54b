package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

var (
	// ErrDuplicateEntry is returned when an entry for the same (transaction,
	// kind) pair already exists; a re-delivered transition is rejected rather
	// than double-counted
	ErrDuplicateEntry = errors.New("ledger: duplicate entry")

	// ErrInvariantViolation is returned when an append would corrupt derived
	// balances (refund exceeding settled amount, negative campaign total).
	// Never coerced: it signals a bug or provider inconsistency that needs
	// manual reconciliation.
	ErrInvariantViolation = errors.New("ledger: invariant violation")
)

// EntryKind classifies a ledger fact
type EntryKind string

const (
	EntryAuthorized EntryKind = "AUTHORIZED"
	EntryCaptured   EntryKind = "CAPTURED"
	EntrySettled    EntryKind = "SETTLED"
	EntryRefunded   EntryKind = "REFUNDED"
	EntryFailed     EntryKind = "FAILED"
)

// IsValid returns true if the entry kind is known
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryAuthorized, EntryCaptured, EntrySettled, EntryRefunded, EntryFailed:
		return true
	}
	return false
}

// String returns the string representation of EntryKind
func (k EntryKind) String() string {
	return string(k)
}

// Entry is an append-only, immutable monetary fact. Entries are never updated
// or deleted; corrections are new entries referencing the original through
// PredecessorID.
type Entry struct {
	shared.BaseEntity

	TransactionID  uuid.UUID `gorm:"type:uuid;not null;index:idx_ledger_tx_kind,unique"`
	Kind           EntryKind `gorm:"size:16;not null;index:idx_ledger_tx_kind,unique"`
	ContributionID uuid.UUID `gorm:"type:uuid;not null;index"`
	CampaignID     uuid.UUID `gorm:"type:uuid;not null;index"`
	DonorID        uuid.UUID `gorm:"type:uuid;not null;index"`

	Amount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency string          `gorm:"size:3;not null"`

	// PredecessorID links a correcting entry to the fact it reverses; a
	// refund entry references the settled entry it undoes
	PredecessorID *uuid.UUID `gorm:"type:uuid"`

	RecordedAt time.Time `gorm:"not null;index"`
}

// TableName returns the database table name
func (Entry) TableName() string {
	return "ledger_entries"
}

// NewEntry creates an immutable ledger entry
func NewEntry(
	transactionID, contributionID, campaignID, donorID uuid.UUID,
	kind EntryKind,
	amount decimal.Decimal,
	currency string,
	predecessorID *uuid.UUID,
) (*Entry, error) {
	if transactionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TRANSACTION", "Transaction reference cannot be empty")
	}
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign reference cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTRY_KIND", "Unknown ledger entry kind")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Ledger entry amount cannot be negative")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if kind == EntryRefunded && predecessorID == nil {
		return nil, shared.NewDomainError("MISSING_PREDECESSOR", "Refund entry must reference the settled entry it reverses")
	}

	return &Entry{
		BaseEntity:     shared.NewBaseEntity(),
		TransactionID:  transactionID,
		Kind:           kind,
		ContributionID: contributionID,
		CampaignID:     campaignID,
		DonorID:        donorID,
		Amount:         amount,
		Currency:       currency,
		PredecessorID:  predecessorID,
		RecordedAt:     time.Now(),
	}, nil
}

// Key returns the idempotency key of the entry: one fact per (transaction, kind)
func (e *Entry) Key() string {
	return fmt.Sprintf("%s:%s", e.TransactionID, e.Kind)
}

// SignedAmount returns the entry's contribution to a raised balance: settled
// adds, refunded subtracts, everything else is informational
func (e *Entry) SignedAmount() decimal.Decimal {
	switch e.Kind {
	case EntrySettled:
		return e.Amount
	case EntryRefunded:
		return e.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// FoldBalance recomputes a balance from scratch by folding entries in append
// order. The entry log is the source of truth; any cached balance must equal
// this fold.
func FoldBalance(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for i := range entries {
		total = total.Add(entries[i].SignedAmount())
	}
	return total
}
