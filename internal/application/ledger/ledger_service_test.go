package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
)

type memEntryRepo struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *memEntryRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].TransactionID == entry.TransactionID && r.entries[i].Kind == entry.Kind {
			return ledger.ErrDuplicateEntry
		}
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memEntryRepo) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Entry
	for i := range r.entries {
		if r.entries[i].TransactionID == transactionID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memEntryRepo) FindByKey(ctx context.Context, transactionID uuid.UUID, kind ledger.EntryKind) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].TransactionID == transactionID && r.entries[i].Kind == kind {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Entry
	for i := range r.entries {
		if r.entries[i].CampaignID == campaignID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memEntryRepo) FindByDonor(ctx context.Context, donorID uuid.UUID) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Entry
	for i := range r.entries {
		if r.entries[i].DonorID == donorID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memEntryRepo) SumByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	entries, _ := r.FindByCampaign(ctx, campaignID)
	return ledger.FoldBalance(entries), nil
}

func (r *memEntryRepo) SumByDonor(ctx context.Context, donorID uuid.UUID) (decimal.Decimal, error) {
	entries, _ := r.FindByDonor(ctx, donorID)
	return ledger.FoldBalance(entries), nil
}

func (r *memEntryRepo) SumRefundedByPredecessor(ctx context.Context, settledEntryID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for i := range r.entries {
		if r.entries[i].Kind == ledger.EntryRefunded && r.entries[i].PredecessorID != nil && *r.entries[i].PredecessorID == settledEntryID {
			total = total.Add(r.entries[i].Amount)
		}
	}
	return total, nil
}

func (r *memEntryRepo) SumTotal(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ledger.FoldBalance(r.entries), nil
}

func (r *memEntryRepo) FindSettledInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

// memCache is a map-backed BalanceCache for observing cache interaction
type memCache struct {
	mu     sync.Mutex
	values map[string]decimal.Decimal
	hits   int
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]decimal.Decimal)}
}

func (c *memCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = balance
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func settledEntry(t *testing.T, campaignID, donorID uuid.UUID, amount float64) *ledger.Entry {
	t.Helper()
	e, err := ledger.NewEntry(uuid.New(), uuid.New(), campaignID, donorID,
		ledger.EntrySettled, decimal.NewFromFloat(amount), "USD", nil)
	require.NoError(t, err)
	return e
}

func TestAppendDoubleDeliveryCountsOnce(t *testing.T) {
	repo := &memEntryRepo{}
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo})
	campaignID := uuid.New()

	entry := settledEntry(t, campaignID, uuid.New(), 50.00)
	require.NoError(t, svc.Append(context.Background(), entry))

	// retried append of the identical fact
	dup, err := ledger.NewEntry(entry.TransactionID, entry.ContributionID, campaignID, entry.DonorID,
		ledger.EntrySettled, decimal.NewFromFloat(50.00), "USD", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Append(context.Background(), dup), ledger.ErrDuplicateEntry)

	balance, err := svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, balance.Amount().Equal(decimal.NewFromFloat(50.00)),
		"expected 50.00, got %s", balance.Amount())
}

func TestRefundCapEnforced(t *testing.T) {
	repo := &memEntryRepo{}
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo})
	campaignID := uuid.New()
	donorID := uuid.New()

	settled := settledEntry(t, campaignID, donorID, 30.00)
	require.NoError(t, svc.Append(context.Background(), settled))

	over, err := ledger.NewEntry(settled.TransactionID, settled.ContributionID, campaignID, donorID,
		ledger.EntryRefunded, decimal.NewFromFloat(40.00), "USD", &settled.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Append(context.Background(), over), ledger.ErrInvariantViolation)

	// balance untouched by the rejected append
	balance, err := svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, balance.Amount().Equal(decimal.NewFromFloat(30.00)))

	exact, err := ledger.NewEntry(settled.TransactionID, settled.ContributionID, campaignID, donorID,
		ledger.EntryRefunded, decimal.NewFromFloat(30.00), "USD", &settled.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Append(context.Background(), exact))

	balance, err = svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, balance.Amount().IsZero())
}

func TestRefundRequiresSettledPredecessor(t *testing.T) {
	repo := &memEntryRepo{}
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo})
	campaignID := uuid.New()
	donorID := uuid.New()

	// predecessor points at a captured fact, not a settled one
	captured, err := ledger.NewEntry(uuid.New(), uuid.New(), campaignID, donorID,
		ledger.EntryCaptured, decimal.NewFromFloat(20.00), "USD", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Append(context.Background(), captured))

	refund, err := ledger.NewEntry(uuid.New(), uuid.New(), campaignID, donorID,
		ledger.EntryRefunded, decimal.NewFromFloat(20.00), "USD", &captured.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Append(context.Background(), refund), ledger.ErrInvariantViolation)
}

func TestBalanceCacheInvalidationOnAppend(t *testing.T) {
	repo := &memEntryRepo{}
	cache := newMemCache()
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo, Cache: cache})
	campaignID := uuid.New()
	donorID := uuid.New()

	require.NoError(t, svc.Append(context.Background(), settledEntry(t, campaignID, donorID, 10.00)))

	first, err := svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, first.Amount().Equal(decimal.NewFromFloat(10.00)))

	// warm read comes from the cache
	_, err = svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	// a new fact drops the stale value
	require.NoError(t, svc.Append(context.Background(), settledEntry(t, campaignID, donorID, 5.00)))
	after, err := svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, after.Amount().Equal(decimal.NewFromFloat(15.00)))
}

func TestRebuildCampaignBalance(t *testing.T) {
	repo := &memEntryRepo{}
	cache := newMemCache()
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo, Cache: cache})
	campaignID := uuid.New()

	require.NoError(t, svc.Append(context.Background(), settledEntry(t, campaignID, uuid.New(), 25.00)))
	require.NoError(t, svc.Append(context.Background(), settledEntry(t, campaignID, uuid.New(), 75.00)))

	// poison the cache; the rebuild must restore the fold
	require.NoError(t, cache.Set(context.Background(), "balance:campaign:"+campaignID.String(), decimal.NewFromInt(999)))

	rebuilt, err := svc.RebuildCampaignBalance(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, rebuilt.Amount().Equal(decimal.NewFromFloat(100.00)))

	read, err := svc.BalanceOfCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	assert.True(t, read.Amount().Equal(decimal.NewFromFloat(100.00)))
}

func TestAppendForTransition(t *testing.T) {
	repo := &memEntryRepo{}
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo})

	tx, err := payment.NewTransaction(uuid.New(), uuid.New(), uuid.New(),
		payment.ProviderCard, decimal.NewFromFloat(50.00), "USD", 1)
	require.NoError(t, err)

	// states outside the recording points produce nothing
	require.NoError(t, svc.AppendForTransition(context.Background(), tx, payment.TransactionStateAuthorized))
	assert.Empty(t, repo.entries)

	require.NoError(t, svc.AppendForTransition(context.Background(), tx, payment.TransactionStateSettled))
	require.Len(t, repo.entries, 1)
	assert.Equal(t, ledger.EntrySettled, repo.entries[0].Kind)

	// re-delivered transition is absorbed
	require.NoError(t, svc.AppendForTransition(context.Background(), tx, payment.TransactionStateSettled))
	assert.Len(t, repo.entries, 1)

	// the refund fact references the settled fact
	require.NoError(t, svc.AppendForTransition(context.Background(), tx, payment.TransactionStateRefunded))
	require.Len(t, repo.entries, 2)
	require.NotNil(t, repo.entries[1].PredecessorID)
	assert.Equal(t, repo.entries[0].ID, *repo.entries[1].PredecessorID)
}

func TestRefundWithoutSettledFactRejected(t *testing.T) {
	repo := &memEntryRepo{}
	svc := NewLedgerService(LedgerServiceConfig{EntryRepo: repo})

	tx, err := payment.NewTransaction(uuid.New(), uuid.New(), uuid.New(),
		payment.ProviderCard, decimal.NewFromFloat(50.00), "USD", 1)
	require.NoError(t, err)

	err = svc.AppendForTransition(context.Background(), tx, payment.TransactionStateRefunded)
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
}
