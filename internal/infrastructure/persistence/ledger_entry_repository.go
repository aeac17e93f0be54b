package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/ledger"
)

// signedSum folds settled entries positively and refunded entries negatively,
// mirroring ledger.Entry.SignedAmount at the storage layer
const signedSum = "COALESCE(SUM(CASE kind WHEN 'SETTLED' THEN amount WHEN 'REFUNDED' THEN -amount ELSE 0 END), 0)"

// GormEntryRepository implements ledger.EntryRepository using GORM. Entries
// are insert-only; there is no update or delete path.
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// Append persists a new entry. The unique index on (transaction_id, kind)
// enforces one fact per transition at the storage level.
func (r *GormEntryRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ledger.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

// FindByID finds an entry by ID
func (r *GormEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var entry ledger.Entry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindByTransaction finds all entries for a transaction in append order
func (r *GormEntryRepository) FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	return r.findOrdered(ctx, "transaction_id = ?", transactionID)
}

// FindByKey finds the entry for a (transaction, kind) pair
func (r *GormEntryRepository) FindByKey(ctx context.Context, transactionID uuid.UUID, kind ledger.EntryKind) (*ledger.Entry, error) {
	var entry ledger.Entry
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND kind = ?", transactionID, kind).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindByCampaign finds all entries for a campaign in append order
func (r *GormEntryRepository) FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]ledger.Entry, error) {
	return r.findOrdered(ctx, "campaign_id = ?", campaignID)
}

// FindByDonor finds all entries for a donor in append order
func (r *GormEntryRepository) FindByDonor(ctx context.Context, donorID uuid.UUID) ([]ledger.Entry, error) {
	return r.findOrdered(ctx, "donor_id = ?", donorID)
}

// SumByCampaign folds signed amounts for a campaign at the storage layer
func (r *GormEntryRepository) SumByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	return r.sum(ctx, "campaign_id = ?", campaignID)
}

// SumByDonor folds signed amounts for a donor at the storage layer
func (r *GormEntryRepository) SumByDonor(ctx context.Context, donorID uuid.UUID) (decimal.Decimal, error) {
	return r.sum(ctx, "donor_id = ?", donorID)
}

// SumRefundedByPredecessor sums refund entries referencing a settled entry
func (r *GormEntryRepository) SumRefundedByPredecessor(ctx context.Context, settledEntryID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("kind = ? AND predecessor_id = ?", ledger.EntryRefunded, settledEntryID).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumTotal folds signed amounts across the whole log
func (r *GormEntryRepository) SumTotal(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Select(signedSum + " AS total").
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// FindSettledInRange finds settled and refunded entries in a time range,
// chronologically ordered
func (r *GormEntryRepository) FindSettledInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	if err := r.db.WithContext(ctx).
		Where("kind IN ? AND recorded_at >= ? AND recorded_at <= ?",
			[]ledger.EntryKind{ledger.EntrySettled, ledger.EntryRefunded}, from, to).
		Order("recorded_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *GormEntryRepository) findOrdered(ctx context.Context, cond string, arg any) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	if err := r.db.WithContext(ctx).
		Where(cond, arg).
		Order("recorded_at ASC, created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *GormEntryRepository) sum(ctx context.Context, cond string, arg any) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&ledger.Entry{}).
		Select(signedSum+" AS total").
		Where(cond, arg).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// Ensure GormEntryRepository implements EntryRepository
var _ ledger.EntryRepository = (*GormEntryRepository)(nil)
