package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/giveflow/backend/internal/domain/shared"
)

// RecordRepository defines the interface for compliance record persistence.
// Records are append-only; there is no update or delete.
type RecordRepository interface {
	// Insert appends a record; returns shared.ErrAlreadyExists when a record
	// for the same ledger entry was already issued
	Insert(ctx context.Context, r *Record) error

	// FindByID finds a record by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// FindByLedgerEntry finds the record issued for a ledger entry, if any
	FindByLedgerEntry(ctx context.Context, ledgerEntryID uuid.UUID) (*Record, error)

	// FindByDonor finds a donor's records, newest first
	FindByDonor(ctx context.Context, donorID uuid.UUID, filter shared.Filter) ([]Record, error)

	// FindByCampaign finds a campaign's records, chronologically ordered
	FindByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]Record, error)

	// FindByDonorAndYear finds a donor's records for a fiscal year
	FindByDonorAndYear(ctx context.Context, donorID uuid.UUID, fiscalYear int) ([]Record, error)

	// FindIssuedInRange finds records issued within a time window
	FindIssuedInRange(ctx context.Context, from, to time.Time, filter shared.Filter) ([]Record, error)

	// NextSequence reserves the next serial sequence for a fiscal year
	NextSequence(ctx context.Context, fiscalYear int) (int64, error)
}
