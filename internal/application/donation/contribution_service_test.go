package donation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appledger "github.com/giveflow/backend/internal/application/ledger"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

type memCampaignRepo struct {
	items map[uuid.UUID]*campaign.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{items: make(map[uuid.UUID]*campaign.Campaign)}
}

func (r *memCampaignRepo) FindByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) FindAll(ctx context.Context, filter campaign.CampaignFilter) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, c := range r.items {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memCampaignRepo) FindExpiredActive(ctx context.Context, limit int) ([]campaign.Campaign, error) {
	return nil, nil
}

func (r *memCampaignRepo) Save(ctx context.Context, c *campaign.Campaign) error {
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memCampaignRepo) Count(ctx context.Context, filter campaign.CampaignFilter) (int64, error) {
	return int64(len(r.items)), nil
}

func (r *memCampaignRepo) CountClosedByOutcome(ctx context.Context, outcome campaign.CampaignOutcome) (int64, error) {
	return 0, nil
}

func (r *memCampaignRepo) AverageGoal(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type memContribRepo struct {
	items map[uuid.UUID]*campaign.Contribution
}

func newMemContribRepo() *memContribRepo {
	return &memContribRepo{items: make(map[uuid.UUID]*campaign.Contribution)}
}

func (r *memContribRepo) FindByID(ctx context.Context, id uuid.UUID) (*campaign.Contribution, error) {
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memContribRepo) FindByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]campaign.Contribution, error) {
	var out []campaign.Contribution
	for _, c := range r.items {
		if c.CampaignID == campaignID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memContribRepo) FindBySchedulePeriod(ctx context.Context, scheduleID uuid.UUID, periodKey string) (*campaign.Contribution, error) {
	for _, c := range r.items {
		if c.ScheduleID != nil && *c.ScheduleID == scheduleID && c.PeriodKey == periodKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memContribRepo) Save(ctx context.Context, c *campaign.Contribution) error {
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

type memTxRepo struct {
	items map[uuid.UUID]*payment.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{items: make(map[uuid.UUID]*payment.Transaction)}
}

func (r *memTxRepo) FindByID(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	tx, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *memTxRepo) FindByProviderRef(ctx context.Context, provider payment.ProviderID, providerRef string) (*payment.Transaction, error) {
	for _, tx := range r.items {
		if tx.Provider == provider && tx.ProviderRef == providerRef {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTxRepo) FindByContribution(ctx context.Context, contributionID uuid.UUID) ([]payment.Transaction, error) {
	var out []payment.Transaction
	for _, tx := range r.items {
		if tx.ContributionID == contributionID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memTxRepo) FindByIdempotencyKey(ctx context.Context, key string) (*payment.Transaction, error) {
	for _, tx := range r.items {
		if tx.IdempotencyKey == key {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTxRepo) FindByCampaignAndState(ctx context.Context, campaignID uuid.UUID, state payment.TransactionState, limit int) ([]payment.Transaction, error) {
	var out []payment.Transaction
	for _, tx := range r.items {
		if tx.CampaignID == campaignID && tx.State == state {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memTxRepo) FindStuck(ctx context.Context, states []payment.TransactionState, updatedBefore time.Time, limit int) ([]payment.Transaction, error) {
	return nil, nil
}

func (r *memTxRepo) Save(ctx context.Context, tx *payment.Transaction) error {
	cp := *tx
	r.items[tx.ID] = &cp
	return nil
}

func (r *memTxRepo) SaveWithLock(ctx context.Context, tx *payment.Transaction) error {
	return r.Save(ctx, tx)
}

type memEntryRepo struct {
	entries []ledger.Entry
}

func (r *memEntryRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	for i := range r.entries {
		if r.entries[i].TransactionID == entry.TransactionID && r.entries[i].Kind == entry.Kind {
			return ledger.ErrDuplicateEntry
		}
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memEntryRepo) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	for i := range r.entries {
		if r.entries[i].ID == id {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for i := range r.entries {
		if r.entries[i].TransactionID == transactionID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memEntryRepo) FindByKey(ctx context.Context, transactionID uuid.UUID, kind ledger.EntryKind) (*ledger.Entry, error) {
	for i := range r.entries {
		if r.entries[i].TransactionID == transactionID && r.entries[i].Kind == kind {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for i := range r.entries {
		if r.entries[i].CampaignID == campaignID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memEntryRepo) FindByDonor(ctx context.Context, donorID uuid.UUID) ([]ledger.Entry, error) {
	return nil, nil
}

func (r *memEntryRepo) SumByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	entries, _ := r.FindByCampaign(ctx, campaignID)
	return ledger.FoldBalance(entries), nil
}

func (r *memEntryRepo) SumByDonor(ctx context.Context, donorID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *memEntryRepo) SumRefundedByPredecessor(ctx context.Context, settledEntryID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range r.entries {
		if r.entries[i].Kind == ledger.EntryRefunded && r.entries[i].PredecessorID != nil && *r.entries[i].PredecessorID == settledEntryID {
			total = total.Add(r.entries[i].Amount)
		}
	}
	return total, nil
}

func (r *memEntryRepo) SumTotal(ctx context.Context) (decimal.Decimal, error) {
	return ledger.FoldBalance(r.entries), nil
}

func (r *memEntryRepo) FindSettledInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

// stubAdapter scripts provider responses and counts calls
type stubAdapter struct {
	id          payment.ProviderID
	authorizeFn func(idempotencyKey string) (*payment.AuthorizeResult, error)
	refundFn    func(providerRef string, amount decimal.Decimal) (*payment.OperationResult, error)

	authorizeKeys []string
	captureCalls  int
	refundCalls   int
}

func (a *stubAdapter) ProviderID() payment.ProviderID {
	if a.id == "" {
		return payment.ProviderCard
	}
	return a.id
}

func (a *stubAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, method payment.MethodDescriptor, idempotencyKey string) (*payment.AuthorizeResult, error) {
	a.authorizeKeys = append(a.authorizeKeys, idempotencyKey)
	return a.authorizeFn(idempotencyKey)
}

func (a *stubAdapter) Capture(ctx context.Context, providerRef string) (*payment.OperationResult, error) {
	a.captureCalls++
	return &payment.OperationResult{ProviderRef: providerRef, Accepted: true}, nil
}

func (a *stubAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
	a.refundCalls++
	if a.refundFn != nil {
		return a.refundFn(providerRef, amount)
	}
	return &payment.OperationResult{ProviderRef: providerRef, Accepted: true}, nil
}

func (a *stubAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	return nil, payment.ErrInvalidSignature
}

func (a *stubAdapter) Reconcile(ctx context.Context, providerRef string) (*payment.ProviderEvent, error) {
	return nil, nil
}

type fixture struct {
	campaigns *memCampaignRepo
	contribs  *memContribRepo
	txs       *memTxRepo
	entries   *memEntryRepo
	adapter   *stubAdapter
	svc       *ContributionService
}

func newFixture(adapter *stubAdapter) *fixture {
	f := &fixture{
		campaigns: newMemCampaignRepo(),
		contribs:  newMemContribRepo(),
		txs:       newMemTxRepo(),
		entries:   &memEntryRepo{},
		adapter:   adapter,
	}
	f.svc = NewContributionService(ContributionServiceConfig{
		Adapters:         []payment.ProviderAdapter{adapter},
		CampaignRepo:     f.campaigns,
		ContributionRepo: f.contribs,
		TransactionRepo:  f.txs,
		LedgerService:    appledger.NewLedgerService(appledger.LedgerServiceConfig{EntryRepo: f.entries}),
		Retry:            RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	return f
}

func activeCampaign(t *testing.T) *campaign.Campaign {
	t.Helper()
	c, err := campaign.NewCampaign("Solar Library", "Ada", campaign.CategoryCommunity,
		decimal.NewFromInt(1000), "USD", time.Now().Add(24*time.Hour), "")
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	c.ClearDomainEvents()
	return c
}

func submitRequest(campaignID uuid.UUID) SubmitRequest {
	return SubmitRequest{
		CampaignID:   campaignID,
		DonorID:      uuid.New(),
		Amount:       decimal.NewFromInt(50),
		Currency:     "USD",
		Tier:         campaign.TierBacker,
		Provider:     payment.ProviderCard,
		MethodScheme: "visa",
		MethodToken:  "tok_123",
	}
}

func TestSubmitSynchronousAuthorizeMovesToCapture(t *testing.T) {
	f := newFixture(&stubAdapter{
		authorizeFn: func(string) (*payment.AuthorizeResult, error) {
			return &payment.AuthorizeResult{ProviderRef: "ch_1"}, nil
		},
	})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	result, err := f.svc.Submit(context.Background(), submitRequest(c.ID))
	require.NoError(t, err)

	assert.Equal(t, payment.TransactionStateCapturing, result.Transaction.State)
	assert.Equal(t, "ch_1", result.Transaction.ProviderRef)
	assert.Equal(t, 1, f.adapter.captureCalls)

	saved, err := f.txs.FindByID(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, payment.TransactionStateCapturing, saved.State)

	contrib, err := f.contribs.FindByID(context.Background(), result.Contribution.ID)
	require.NoError(t, err)
	require.NotNil(t, contrib)
	assert.Equal(t, campaign.ContributionStatePending, contrib.State)
}

func TestSubmitPendingAuthorizeStaysAuthorizing(t *testing.T) {
	f := newFixture(&stubAdapter{
		authorizeFn: func(string) (*payment.AuthorizeResult, error) {
			return &payment.AuthorizeResult{ProviderRef: "ba_1", Pending: true}, nil
		},
	})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	result, err := f.svc.Submit(context.Background(), submitRequest(c.ID))
	require.NoError(t, err)

	// the rail confirms asynchronously; the callback drives the rest
	assert.Equal(t, payment.TransactionStateAuthorizing, result.Transaction.State)
	assert.Equal(t, "ba_1", result.Transaction.ProviderRef)
	assert.Zero(t, f.adapter.captureCalls)
}

func TestSubmitDeclineFailsTerminally(t *testing.T) {
	f := newFixture(&stubAdapter{
		authorizeFn: func(string) (*payment.AuthorizeResult, error) {
			return nil, payment.ErrProviderDeclined
		},
	})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	result, err := f.svc.Submit(context.Background(), submitRequest(c.ID))
	assert.ErrorIs(t, err, payment.ErrProviderDeclined)
	require.NotNil(t, result)

	// declines never retry
	assert.Len(t, f.adapter.authorizeKeys, 1)

	saved, err := f.txs.FindByID(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, payment.TransactionStateFailed, saved.State)

	require.Len(t, f.entries.entries, 1)
	assert.Equal(t, ledger.EntryFailed, f.entries.entries[0].Kind)

	contrib, err := f.contribs.FindByID(context.Background(), result.Contribution.ID)
	require.NoError(t, err)
	require.NotNil(t, contrib)
	assert.Equal(t, campaign.ContributionStateFailed, contrib.State)
}

func TestSubmitTransientFailureRetriesWithSameKey(t *testing.T) {
	calls := 0
	f := newFixture(&stubAdapter{
		authorizeFn: func(string) (*payment.AuthorizeResult, error) {
			calls++
			if calls == 1 {
				return nil, payment.ErrProviderUnavailable
			}
			return &payment.AuthorizeResult{ProviderRef: "ch_2"}, nil
		},
	})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	result, err := f.svc.Submit(context.Background(), submitRequest(c.ID))
	require.NoError(t, err)

	require.Len(t, f.adapter.authorizeKeys, 2)
	assert.Equal(t, f.adapter.authorizeKeys[0], f.adapter.authorizeKeys[1])
	assert.Equal(t, payment.TransactionStateCapturing, result.Transaction.State)
}

func TestSubmitRetryCeilingFailsTerminally(t *testing.T) {
	f := newFixture(&stubAdapter{
		authorizeFn: func(string) (*payment.AuthorizeResult, error) {
			return nil, payment.ErrProviderTransient
		},
	})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	result, err := f.svc.Submit(context.Background(), submitRequest(c.ID))
	assert.ErrorIs(t, err, payment.ErrProviderTransient)
	require.NotNil(t, result)
	assert.Len(t, f.adapter.authorizeKeys, 3)

	saved, err := f.txs.FindByID(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, payment.TransactionStateFailed, saved.State)
	assert.Equal(t, "authorize retry ceiling exhausted", saved.FailureReason)
}

func TestSubmitRejectsNonAcceptingCampaign(t *testing.T) {
	f := newFixture(&stubAdapter{})

	// unknown campaign
	_, err := f.svc.Submit(context.Background(), submitRequest(uuid.New()))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// draft campaign
	draft, err := campaign.NewCampaign("Quiet Launch", "Ada", campaign.CategoryArt,
		decimal.NewFromInt(500), "USD", time.Now().Add(24*time.Hour), "")
	require.NoError(t, err)
	require.NoError(t, f.campaigns.Save(context.Background(), draft))

	_, err = f.svc.Submit(context.Background(), submitRequest(draft.ID))
	assert.ErrorIs(t, err, ErrCampaignNotAccepting)
	assert.Empty(t, f.txs.items)
}

func TestSubmitUnknownProvider(t *testing.T) {
	f := newFixture(&stubAdapter{})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	req := submitRequest(c.ID)
	req.Provider = payment.ProviderCrypto
	_, err := f.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
}

func TestSubmitRejectsAmountBelowTier(t *testing.T) {
	f := newFixture(&stubAdapter{})
	c := activeCampaign(t)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	req := submitRequest(c.ID)
	req.Amount = decimal.NewFromInt(10)
	req.Tier = campaign.TierChampion

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, f.txs.items)
	assert.Empty(t, f.adapter.authorizeKeys)
}

func settledTransaction(t *testing.T, amount float64) *payment.Transaction {
	t.Helper()
	tx, err := payment.NewTransaction(uuid.New(), uuid.New(), uuid.New(),
		payment.ProviderCard, decimal.NewFromFloat(amount), "USD", 1)
	require.NoError(t, err)
	tx.State = payment.TransactionStateSettled
	tx.ProviderRef = "ch_settled"
	tx.MovedAmount = decimal.NewFromFloat(amount)
	return tx
}

func TestRefundTransactionSubmitsToProvider(t *testing.T) {
	f := newFixture(&stubAdapter{})
	tx := settledTransaction(t, 80.00)
	require.NoError(t, f.txs.Save(context.Background(), tx))

	err := f.svc.RefundTransaction(context.Background(), tx.ID, decimal.NewFromFloat(30.00))
	require.NoError(t, err)
	assert.Equal(t, 1, f.adapter.refundCalls)

	saved, err := f.txs.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, payment.TransactionStateRefunding, saved.State)
}

func TestRefundTransactionGuards(t *testing.T) {
	f := newFixture(&stubAdapter{})

	captured := settledTransaction(t, 60.00)
	captured.State = payment.TransactionStateCaptured
	require.NoError(t, f.txs.Save(context.Background(), captured))

	settled := settledTransaction(t, 60.00)
	require.NoError(t, f.txs.Save(context.Background(), settled))

	tests := []struct {
		name    string
		txID    uuid.UUID
		amount  decimal.Decimal
		wantErr error
	}{
		{"unknown transaction", uuid.New(), decimal.NewFromInt(10), shared.ErrNotFound},
		{"not yet settled", captured.ID, decimal.NewFromInt(10), ErrNotRefundable},
		{"zero amount", settled.ID, decimal.Zero, ErrRefundExceedsSettled},
		{"exceeds settled", settled.ID, decimal.NewFromInt(70), ErrRefundExceedsSettled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.RefundTransaction(context.Background(), tt.txID, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, f.adapter.refundCalls)
}

func TestRefundTransactionRetriesTransientFailures(t *testing.T) {
	calls := 0
	f := newFixture(&stubAdapter{
		refundFn: func(providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
			calls++
			if calls == 1 {
				return nil, payment.ErrProviderUnavailable
			}
			return &payment.OperationResult{ProviderRef: providerRef, Accepted: true}, nil
		},
	})
	tx := settledTransaction(t, 40.00)
	require.NoError(t, f.txs.Save(context.Background(), tx))

	err := f.svc.RefundTransaction(context.Background(), tx.ID, decimal.NewFromFloat(40.00))
	require.NoError(t, err)
	assert.Equal(t, 2, f.adapter.refundCalls)
}

func TestGetContributionNotFound(t *testing.T) {
	f := newFixture(&stubAdapter{})
	_, _, err := f.svc.GetContribution(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
