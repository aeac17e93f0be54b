package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/application/webhook"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/infrastructure/config"
)

type stubTransactionRepo struct {
	payment.TransactionRepository

	stuck    []payment.Transaction
	stuckErr error

	gotStates []payment.TransactionState
	gotCutoff time.Time
}

func (r *stubTransactionRepo) FindStuck(ctx context.Context, states []payment.TransactionState, updatedBefore time.Time, limit int) ([]payment.Transaction, error) {
	r.gotStates = states
	r.gotCutoff = updatedBefore
	return r.stuck, r.stuckErr
}

type stubAdapter struct {
	provider payment.ProviderID
	event    *payment.ProviderEvent
	err      error

	reconciled []string
}

func (a *stubAdapter) ProviderID() payment.ProviderID { return a.provider }

func (a *stubAdapter) Authorize(ctx context.Context, amount decimal.Decimal, currency string, method payment.MethodDescriptor, idempotencyKey string) (*payment.AuthorizeResult, error) {
	return nil, errors.New("not implemented")
}

func (a *stubAdapter) Capture(ctx context.Context, providerRef string) (*payment.OperationResult, error) {
	return nil, errors.New("not implemented")
}

func (a *stubAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*payment.OperationResult, error) {
	return nil, errors.New("not implemented")
}

func (a *stubAdapter) VerifyCallback(payload []byte, signature string) (*payment.ProviderEvent, error) {
	return nil, errors.New("not implemented")
}

func (a *stubAdapter) Reconcile(ctx context.Context, providerRef string) (*payment.ProviderEvent, error) {
	a.reconciled = append(a.reconciled, providerRef)
	return a.event, a.err
}

type stubSink struct {
	results map[string]webhook.IngestStatus
	applied []string

	recovered     int
	recoverLimits []int
}

func (s *stubSink) ApplyReconciled(ctx context.Context, event *payment.ProviderEvent) (*webhook.IngestResult, error) {
	s.applied = append(s.applied, event.EventID)
	status, ok := s.results[event.EventID]
	if !ok {
		status = webhook.StatusAccepted
	}
	return &webhook.IngestResult{Status: status}, nil
}

func (s *stubSink) RecoverUnprocessed(ctx context.Context, limit int) (int, error) {
	s.recoverLimits = append(s.recoverLimits, limit)
	return s.recovered, nil
}

func stuckTransaction(provider payment.ProviderID, ref string, state payment.TransactionState) payment.Transaction {
	tx := payment.Transaction{
		Provider:    provider,
		ProviderRef: ref,
		State:       state,
	}
	tx.ID = uuid.New()
	return tx
}

func TestReconciliationSweepAppliesProviderTruth(t *testing.T) {
	adapter := &stubAdapter{
		provider: payment.ProviderCard,
		event: &payment.ProviderEvent{
			Provider:    payment.ProviderCard,
			EventID:     "recon:pi_001:succeeded",
			ProviderRef: "pi_001",
			Kind:        payment.EventSettled,
		},
	}
	repo := &stubTransactionRepo{stuck: []payment.Transaction{
		stuckTransaction(payment.ProviderCard, "pi_001", payment.TransactionStateSettling),
	}}
	sink := &stubSink{}

	poller := NewReconciliationPoller(config.ReconciliationConfig{
		StuckThreshold: 15 * time.Minute,
		BatchSize:      50,
	}, repo, []payment.ProviderAdapter{adapter}, sink, zap.NewNop())

	now := time.Now()
	applied, err := poller.sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{"pi_001"}, adapter.reconciled)
	assert.Equal(t, []string{"recon:pi_001:succeeded"}, sink.applied)

	// the cutoff and state set passed to the repository drive the query
	assert.Equal(t, inFlightStates, repo.gotStates)
	assert.WithinDuration(t, now.Add(-15*time.Minute), repo.gotCutoff, time.Second)
}

func TestReconciliationSweepCountsOnlyNewInformation(t *testing.T) {
	adapter := &stubAdapter{
		provider: payment.ProviderBank,
		event: &payment.ProviderEvent{
			Provider:    payment.ProviderBank,
			EventID:     "recon:db_001:captured",
			ProviderRef: "db_001",
			Kind:        payment.EventCaptured,
		},
	}
	repo := &stubTransactionRepo{stuck: []payment.Transaction{
		stuckTransaction(payment.ProviderBank, "db_001", payment.TransactionStateCapturing),
	}}
	// the provider state has not changed since the last poll
	sink := &stubSink{results: map[string]webhook.IngestStatus{
		"recon:db_001:captured": webhook.StatusDuplicate,
	}}

	poller := NewReconciliationPoller(config.ReconciliationConfig{}, repo,
		[]payment.ProviderAdapter{adapter}, sink, zap.NewNop())

	applied, err := poller.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Len(t, sink.applied, 1)
}

func TestReconciliationSweepSkipsUnreachableTransactions(t *testing.T) {
	adapter := &stubAdapter{provider: payment.ProviderCard, err: payment.ErrProviderUnavailable}
	repo := &stubTransactionRepo{stuck: []payment.Transaction{
		// no provider reference: authorization never reached the rail
		stuckTransaction(payment.ProviderCard, "", payment.TransactionStateAuthorizing),
		// provider query fails
		stuckTransaction(payment.ProviderCard, "pi_002", payment.TransactionStateCapturing),
		// no adapter registered for this rail
		stuckTransaction(payment.ProviderCrypto, "ch_001", payment.TransactionStateSettling),
	}}
	sink := &stubSink{}

	poller := NewReconciliationPoller(config.ReconciliationConfig{}, repo,
		[]payment.ProviderAdapter{adapter}, sink, zap.NewNop())

	applied, err := poller.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Empty(t, sink.applied)
	assert.Equal(t, []string{"pi_002"}, adapter.reconciled)
}

func TestReconciliationSweepCoversCapturedTransactions(t *testing.T) {
	adapter := &stubAdapter{
		provider: payment.ProviderCrypto,
		event: &payment.ProviderEvent{
			Provider:    payment.ProviderCrypto,
			EventID:     "recon:tx_abc:confirmed:6",
			ProviderRef: "tx_abc",
			Kind:        payment.EventSettled,
		},
	}
	// captured with the settle callback lost; only the sweep can move it
	repo := &stubTransactionRepo{stuck: []payment.Transaction{
		stuckTransaction(payment.ProviderCrypto, "tx_abc", payment.TransactionStateCaptured),
	}}
	sink := &stubSink{}

	poller := NewReconciliationPoller(config.ReconciliationConfig{}, repo,
		[]payment.ProviderAdapter{adapter}, sink, zap.NewNop())

	applied, err := poller.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Contains(t, repo.gotStates, payment.TransactionStateCaptured)
	assert.Equal(t, []string{"tx_abc"}, adapter.reconciled)
}

func TestReconciliationSweepRetriesUnprocessedEvents(t *testing.T) {
	repo := &stubTransactionRepo{}
	// two events were persisted but their first processing failed mid-run;
	// redelivered callbacks dedup against them, so the sweep must retry
	sink := &stubSink{recovered: 2}

	poller := NewReconciliationPoller(config.ReconciliationConfig{BatchSize: 25}, repo,
		nil, sink, zap.NewNop())

	applied, err := poller.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, []int{25}, sink.recoverLimits)
}

func TestReconciliationPollerTriggerRequiresRunning(t *testing.T) {
	poller := NewReconciliationPoller(config.ReconciliationConfig{}, &stubTransactionRepo{}, nil, &stubSink{}, zap.NewNop())

	_, err := poller.TriggerSweep(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestReconciliationPollerStartStop(t *testing.T) {
	poller := NewReconciliationPoller(config.ReconciliationConfig{
		PollInterval: time.Hour,
	}, &stubTransactionRepo{}, nil, &stubSink{}, zap.NewNop())

	require.NoError(t, poller.Start(context.Background()))
	require.NoError(t, poller.Stop(context.Background()))
	require.NoError(t, poller.Stop(context.Background()))
}
