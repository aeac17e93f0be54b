package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

// GormTransactionRepository implements payment.TransactionRepository using GORM
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// FindByID finds a transaction by ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// FindByProviderRef finds the transaction bound to a provider reference
func (r *GormTransactionRepository) FindByProviderRef(ctx context.Context, provider payment.ProviderID, providerRef string) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_ref = ?", provider, providerRef).
		First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// FindByContribution finds all transactions for a contribution, newest first
func (r *GormTransactionRepository) FindByContribution(ctx context.Context, contributionID uuid.UUID) ([]payment.Transaction, error) {
	var txs []payment.Transaction
	if err := r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Order("attempt DESC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindByIdempotencyKey finds the transaction created under an idempotency key
func (r *GormTransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// FindByCampaignAndState finds a campaign's transactions in a given state
func (r *GormTransactionRepository) FindByCampaignAndState(ctx context.Context, campaignID uuid.UUID, state payment.TransactionState, limit int) ([]payment.Transaction, error) {
	var txs []payment.Transaction
	query := r.db.WithContext(ctx).
		Where("campaign_id = ? AND state = ?", campaignID, state).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindStuck finds non-terminal transactions whose last update is older than the cutoff
func (r *GormTransactionRepository) FindStuck(ctx context.Context, states []payment.TransactionState, updatedBefore time.Time, limit int) ([]payment.Transaction, error) {
	var txs []payment.Transaction
	query := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", states, updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// Save creates or updates a transaction
func (r *GormTransactionRepository) Save(ctx context.Context, tx *payment.Transaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// SaveWithLock saves with optimistic locking. The update only lands when the
// stored version still matches the version the caller loaded; a concurrent
// writer that got there first makes the row count zero.
func (r *GormTransactionRepository) SaveWithLock(ctx context.Context, tx *payment.Transaction) error {
	currentVersion := tx.Version
	tx.Version++

	result := r.db.WithContext(ctx).
		Model(&payment.Transaction{}).
		Where("id = ? AND version = ?", tx.ID, currentVersion).
		Updates(map[string]any{
			"state":          tx.State,
			"provider_ref":   tx.ProviderRef,
			"moved_amount":   tx.MovedAmount,
			"failure_reason": tx.FailureReason,
			"last_event_at":  tx.LastEventAt,
			"version":        tx.Version,
			"updated_at":     tx.UpdatedAt,
		})
	if result.Error != nil {
		tx.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		tx.Version = currentVersion
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormTransactionRepository implements TransactionRepository
var _ payment.TransactionRepository = (*GormTransactionRepository)(nil)
