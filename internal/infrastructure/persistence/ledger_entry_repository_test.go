package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/ledger"
)

func mustEntry(t *testing.T, txID, campaignID, donorID uuid.UUID, kind ledger.EntryKind, amount float64, predecessorID *uuid.UUID) *ledger.Entry {
	t.Helper()
	entry, err := ledger.NewEntry(txID, uuid.New(), campaignID, donorID, kind,
		decimal.NewFromFloat(amount), "USD", predecessorID)
	require.NoError(t, err)
	return entry
}

func TestEntryRepository_AppendRejectsDuplicateKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEntryRepository(db)
	ctx := context.Background()

	txID := uuid.New()
	campaignID := uuid.New()
	donorID := uuid.New()

	first := mustEntry(t, txID, campaignID, donorID, ledger.EntrySettled, 50.00, nil)
	require.NoError(t, repo.Append(ctx, first))

	// a second fact for the same (transaction, kind) must collide
	second := mustEntry(t, txID, campaignID, donorID, ledger.EntrySettled, 50.00, nil)
	err := repo.Append(ctx, second)
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntry)

	// a different kind for the same transaction is fine
	refund := mustEntry(t, txID, campaignID, donorID, ledger.EntryRefunded, 50.00, &first.ID)
	assert.NoError(t, repo.Append(ctx, refund))
}

func TestEntryRepository_SumByCampaign(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEntryRepository(db)
	ctx := context.Background()

	campaignID := uuid.New()
	donorID := uuid.New()

	settled := mustEntry(t, uuid.New(), campaignID, donorID, ledger.EntrySettled, 100.00, nil)
	require.NoError(t, repo.Append(ctx, settled))
	require.NoError(t, repo.Append(ctx, mustEntry(t, uuid.New(), campaignID, donorID, ledger.EntrySettled, 25.00, nil)))
	require.NoError(t, repo.Append(ctx, mustEntry(t, settled.TransactionID, campaignID, donorID, ledger.EntryRefunded, 30.00, &settled.ID)))
	// captured entries are informational and must not move the balance
	require.NoError(t, repo.Append(ctx, mustEntry(t, uuid.New(), campaignID, donorID, ledger.EntryCaptured, 999.00, nil)))
	// another campaign's entries stay out of the fold
	require.NoError(t, repo.Append(ctx, mustEntry(t, uuid.New(), uuid.New(), donorID, ledger.EntrySettled, 500.00, nil)))

	total, err := repo.SumByCampaign(ctx, campaignID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(95.00)), "got %s", total)

	donorTotal, err := repo.SumByDonor(ctx, donorID)
	require.NoError(t, err)
	assert.True(t, donorTotal.Equal(decimal.NewFromFloat(595.00)), "got %s", donorTotal)

	grand, err := repo.SumTotal(ctx)
	require.NoError(t, err)
	assert.True(t, grand.Equal(decimal.NewFromFloat(595.00)), "got %s", grand)
}

func TestEntryRepository_SumRefundedByPredecessor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEntryRepository(db)
	ctx := context.Background()

	campaignID := uuid.New()
	donorID := uuid.New()

	settled := mustEntry(t, uuid.New(), campaignID, donorID, ledger.EntrySettled, 80.00, nil)
	require.NoError(t, repo.Append(ctx, settled))
	require.NoError(t, repo.Append(ctx, mustEntry(t, settled.TransactionID, campaignID, donorID, ledger.EntryRefunded, 30.00, &settled.ID)))

	refunded, err := repo.SumRefundedByPredecessor(ctx, settled.ID)
	require.NoError(t, err)
	assert.True(t, refunded.Equal(decimal.NewFromFloat(30.00)), "got %s", refunded)

	none, err := repo.SumRefundedByPredecessor(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestEntryRepository_FindByKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEntryRepository(db)
	ctx := context.Background()

	entry := mustEntry(t, uuid.New(), uuid.New(), uuid.New(), ledger.EntrySettled, 10.00, nil)
	require.NoError(t, repo.Append(ctx, entry))

	found, err := repo.FindByKey(ctx, entry.TransactionID, ledger.EntrySettled)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.ID, found.ID)

	missing, err := repo.FindByKey(ctx, entry.TransactionID, ledger.EntryRefunded)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
