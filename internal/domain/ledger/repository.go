package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryRepository defines the single write path and the fold queries for the
// ledger log. Implementations must enforce the (transaction, kind) uniqueness
// at the storage level.
type EntryRepository interface {
	// Append persists a new entry; returns ErrDuplicateEntry when an entry with
	// the same (transaction, kind) already exists
	Append(ctx context.Context, entry *Entry) error

	// FindByID finds an entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// FindByTransaction finds all entries for a transaction in append order
	FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]Entry, error)

	// FindByKey finds the entry for a (transaction, kind) pair
	FindByKey(ctx context.Context, transactionID uuid.UUID, kind EntryKind) (*Entry, error)

	// FindByCampaign finds all entries for a campaign in append order
	FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Entry, error)

	// FindByDonor finds all entries for a donor in append order
	FindByDonor(ctx context.Context, donorID uuid.UUID) ([]Entry, error)

	// SumByCampaign folds signed amounts for a campaign at the storage layer
	SumByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error)

	// SumByDonor folds signed amounts for a donor at the storage layer
	SumByDonor(ctx context.Context, donorID uuid.UUID) (decimal.Decimal, error)

	// SumRefundedByPredecessor sums refund entries referencing a settled entry
	SumRefundedByPredecessor(ctx context.Context, settledEntryID uuid.UUID) (decimal.Decimal, error)

	// SumTotal folds signed amounts across the whole log; platform-wide raised
	SumTotal(ctx context.Context) (decimal.Decimal, error)

	// FindSettledInRange finds settled and refunded entries in a time range,
	// chronologically ordered; input to compliance export
	FindSettledInRange(ctx context.Context, from, to time.Time) ([]Entry, error)
}
