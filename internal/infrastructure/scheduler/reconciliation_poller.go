package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/application/webhook"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/infrastructure/config"
)

// ReconciliationSink feeds reconciliation-derived events into the same
// processing path as live callbacks and retries events that were persisted
// but not yet processed
type ReconciliationSink interface {
	ApplyReconciled(ctx context.Context, event *payment.ProviderEvent) (*webhook.IngestResult, error)
	RecoverUnprocessed(ctx context.Context, limit int) (int, error)
}

// inFlightStates are the states a lost callback can strand a transaction in.
// Captured is included: settlement only ever arrives by callback, so a lost
// settle notification would otherwise leave the transaction captured forever.
var inFlightStates = []payment.TransactionState{
	payment.TransactionStateAuthorizing,
	payment.TransactionStateCapturing,
	payment.TransactionStateCaptured,
	payment.TransactionStateSettling,
	payment.TransactionStateRefunding,
}

// ReconciliationPoller periodically sweeps transactions stuck in transitional
// states and asks their provider for the current truth. The answers flow
// through the normal ingestion dedup, so a poll that learns nothing new is
// absorbed as a duplicate.
type ReconciliationPoller struct {
	config   config.ReconciliationConfig
	txRepo   payment.TransactionRepository
	adapters map[payment.ProviderID]payment.ProviderAdapter
	sink     ReconciliationSink
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRunAt *time.Time
}

// NewReconciliationPoller creates a new reconciliation poller
func NewReconciliationPoller(
	cfg config.ReconciliationConfig,
	txRepo payment.TransactionRepository,
	adapters []payment.ProviderAdapter,
	sink ReconciliationSink,
	logger *zap.Logger,
) *ReconciliationPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byProvider := make(map[payment.ProviderID]payment.ProviderAdapter)
	for _, a := range adapters {
		byProvider[a.ProviderID()] = a
	}
	return &ReconciliationPoller{
		config:   cfg,
		txRepo:   txRepo,
		adapters: byProvider,
		sink:     sink,
		logger:   logger,
	}
}

// Start starts the poll loop
func (p *ReconciliationPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.Info("Reconciliation poller started",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("stuck_threshold", p.config.StuckThreshold),
		zap.Int("batch_size", p.config.BatchSize),
	)
	return nil
}

// Stop gracefully stops the poller
func (p *ReconciliationPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Reconciliation poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Reconciliation poller stop timed out")
		return ctx.Err()
	}
}

// TriggerSweep runs one reconciliation pass immediately
func (p *ReconciliationPoller) TriggerSweep(ctx context.Context) (int, error) {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return 0, ErrSchedulerNotRunning
	}
	p.mu.Unlock()
	return p.sweep(ctx, time.Now())
}

// GetLastRunAt returns when the last sweep ran
func (p *ReconciliationPoller) GetLastRunAt() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRunAt
}

func (p *ReconciliationPoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := p.sweep(ctx, now); err != nil {
				p.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// sweep retries persisted-but-unprocessed events, then reconciles every
// transaction stuck past the threshold. Returns how many transactions yielded
// a newly applied event.
func (p *ReconciliationPoller) sweep(ctx context.Context, now time.Time) (int, error) {
	p.mu.Lock()
	p.lastRunAt = &now
	p.mu.Unlock()

	// events whose first processing failed mid-run sit persisted and
	// unprocessed; redelivery dedups against them, so the sweep is the only
	// retry between restarts
	recovered, err := p.sink.RecoverUnprocessed(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Warn("Unprocessed event recovery failed", zap.Error(err))
	} else if recovered > 0 {
		p.logger.Info("Recovered unprocessed events in sweep", zap.Int("count", recovered))
	}

	stuck, err := p.txRepo.FindStuck(ctx, inFlightStates, now.Add(-p.config.StuckThreshold), p.config.BatchSize)
	if err != nil {
		return recovered, err
	}
	if len(stuck) == 0 {
		return recovered, nil
	}

	p.logger.Info("Reconciling stuck transactions", zap.Int("count", len(stuck)))

	applied := 0
	for i := range stuck {
		if p.reconcileOne(ctx, &stuck[i]) {
			applied++
		}
	}

	p.logger.Info("Reconciliation sweep finished",
		zap.Int("stuck", len(stuck)),
		zap.Int("applied", applied),
	)
	return recovered + applied, nil
}

// reconcileOne asks the provider for the current state of one transaction and
// feeds the answer into the ingestion path; returns true when the answer was
// new information
func (p *ReconciliationPoller) reconcileOne(ctx context.Context, tx *payment.Transaction) bool {
	adapter, ok := p.adapters[tx.Provider]
	if !ok {
		p.logger.Error("No adapter for stuck transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("provider", tx.Provider.String()))
		return false
	}
	if tx.ProviderRef == "" {
		// authorization never reached the provider; nothing to ask
		p.logger.Warn("Stuck transaction has no provider reference",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("state", tx.State.String()))
		return false
	}

	event, err := adapter.Reconcile(ctx, tx.ProviderRef)
	if err != nil {
		p.logger.Warn("Reconcile query failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("provider_ref", tx.ProviderRef),
			zap.Error(err))
		return false
	}

	result, err := p.sink.ApplyReconciled(ctx, event)
	if err != nil {
		p.logger.Warn("Failed to apply reconciled event",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return false
	}
	if result.Status != webhook.StatusAccepted {
		return false
	}

	p.logger.Info("Stuck transaction reconciled",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("event_kind", string(event.Kind)))
	return true
}
