package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/application/ledger"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

var (
	// ErrUnknownTransaction is returned when no transaction matches the
	// provider reference in a verified callback; the event stays persisted and
	// unprocessed so recovery can retry it
	ErrUnknownTransaction = errors.New("webhook: no transaction for provider reference")
)

// IngestStatus is the outcome of an Ingest call
type IngestStatus string

const (
	// StatusAccepted means the event was new and fully processed
	StatusAccepted IngestStatus = "ACCEPTED"
	// StatusDuplicate means the event was already seen; no side effects
	StatusDuplicate IngestStatus = "DUPLICATE"
	// StatusRejected means the payload failed verification or parsing
	StatusRejected IngestStatus = "REJECTED"
)

// IngestResult describes what happened to an inbound callback
type IngestResult struct {
	Status IngestStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// IngestionService accepts raw provider callbacks, deduplicates them, and
// drives the transaction state machine. Dedup has two tiers: a fast
// idempotency store in front of the authoritative webhook_events table. The
// parsed event and its dedup key land in one row, so persisting them is a
// single atomic insert; a crash after persist but before processing is healed
// by RecoverUnprocessed on restart.
type IngestionService struct {
	adapters      map[payment.ProviderID]payment.ProviderAdapter
	fastDedup     shared.IdempotencyStore
	dedupTTL      time.Duration
	webhookRepo   payment.WebhookEventRepository
	txRepo        payment.TransactionRepository
	contribRepo   campaign.ContributionRepository
	ledgerService *ledger.LedgerService
	publisher     shared.EventPublisher
	txLocks       *keyedMutex
	logger        *zap.Logger
}

// IngestionServiceConfig holds dependencies for the ingestion service
type IngestionServiceConfig struct {
	Adapters         []payment.ProviderAdapter
	FastDedup        shared.IdempotencyStore
	DedupTTL         time.Duration
	WebhookRepo      payment.WebhookEventRepository
	TransactionRepo  payment.TransactionRepository
	ContributionRepo campaign.ContributionRepository
	LedgerService    *ledger.LedgerService
	EventPublisher   shared.EventPublisher
	Logger           *zap.Logger
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(config IngestionServiceConfig) *IngestionService {
	adapters := make(map[payment.ProviderID]payment.ProviderAdapter)
	for _, a := range config.Adapters {
		adapters[a.ProviderID()] = a
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := config.DedupTTL
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	return &IngestionService{
		adapters:      adapters,
		fastDedup:     config.FastDedup,
		dedupTTL:      ttl,
		webhookRepo:   config.WebhookRepo,
		txRepo:        config.TransactionRepo,
		contribRepo:   config.ContributionRepo,
		ledgerService: config.LedgerService,
		publisher:     config.EventPublisher,
		txLocks:       newKeyedMutex(),
		logger:        logger,
	}
}

// Ingest verifies, deduplicates, persists, and processes one raw callback.
// Duplicates are acknowledged without side effects; verification failures are
// dropped at the boundary and never reach the state machine.
func (s *IngestionService) Ingest(ctx context.Context, provider payment.ProviderID, payload []byte, signature string) (*IngestResult, error) {
	adapter, ok := s.adapters[provider]
	if !ok {
		return &IngestResult{Status: StatusRejected, Reason: "unknown provider"}, payment.ErrUnknownProvider
	}

	event, err := adapter.VerifyCallback(payload, signature)
	if err != nil {
		s.logger.Warn("Callback rejected at verification",
			zap.String("provider", provider.String()),
			zap.Error(err))
		return &IngestResult{Status: StatusRejected, Reason: "invalid signature"}, payment.ErrInvalidSignature
	}

	return s.admit(ctx, event)
}

// ApplyReconciled feeds a reconciliation-derived event through the same dedup
// and processing path as a live callback. Reconciliation event identities are
// derived from the provider state, so re-polling an unchanged transaction is a
// duplicate here, not a second transition.
func (s *IngestionService) ApplyReconciled(ctx context.Context, event *payment.ProviderEvent) (*IngestResult, error) {
	if _, ok := s.adapters[event.Provider]; !ok {
		return &IngestResult{Status: StatusRejected, Reason: "unknown provider"}, payment.ErrUnknownProvider
	}
	return s.admit(ctx, event)
}

// admit deduplicates, persists, and processes one verified event
func (s *IngestionService) admit(ctx context.Context, event *payment.ProviderEvent) (*IngestResult, error) {
	dedupKey := payment.WebhookDedupKey(event.Provider, event.EventID)

	// fast tier: absorbs redelivery bursts without touching the database
	if s.fastDedup != nil {
		if seen, err := s.fastDedup.IsProcessed(ctx, dedupKey); err == nil && seen {
			s.logger.Info("Duplicate callback absorbed by fast dedup",
				zap.String("dedup_key", dedupKey))
			return &IngestResult{Status: StatusDuplicate}, nil
		}
	}

	record, err := payment.NewWebhookEvent(event)
	if err != nil {
		return &IngestResult{Status: StatusRejected, Reason: "malformed event"}, err
	}

	// durable tier: the insert is the authoritative dedup decision
	if err := s.webhookRepo.SaveNew(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			s.logger.Info("Duplicate callback",
				zap.String("dedup_key", dedupKey),
				zap.String("provider", event.Provider.String()))
			return &IngestResult{Status: StatusDuplicate}, nil
		}
		return nil, fmt.Errorf("failed to persist webhook event: %w", err)
	}

	s.logger.Info("Callback accepted",
		zap.String("provider", event.Provider.String()),
		zap.String("event_id", event.EventID),
		zap.String("kind", string(event.Kind)),
		zap.String("provider_ref", event.ProviderRef))

	if err := s.process(ctx, record, event); err != nil {
		// the event is durably persisted; recovery will retry it
		s.logger.Error("Failed to process webhook event",
			zap.String("dedup_key", dedupKey),
			zap.Error(err))
		return nil, err
	}

	if s.fastDedup != nil {
		if _, err := s.fastDedup.MarkProcessed(ctx, dedupKey, s.dedupTTL); err != nil {
			s.logger.Warn("Failed to mark fast dedup", zap.Error(err))
		}
	}
	return &IngestResult{Status: StatusAccepted}, nil
}

// RecoverUnprocessed re-dispatches events that were persisted but not yet
// processed when the process last stopped
func (s *IngestionService) RecoverUnprocessed(ctx context.Context, limit int) (int, error) {
	records, err := s.webhookRepo.FindUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan unprocessed events: %w", err)
	}

	recovered := 0
	for i := range records {
		record := &records[i]
		event, err := record.Event()
		if err != nil {
			s.logger.Error("Unprocessable webhook event in recovery",
				zap.String("dedup_key", record.DedupKey),
				zap.Error(err))
			continue
		}
		if err := s.process(ctx, record, event); err != nil {
			s.logger.Warn("Recovery retry failed",
				zap.String("dedup_key", record.DedupKey),
				zap.Error(err))
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("Recovered unprocessed webhook events", zap.Int("count", recovered))
	}
	return recovered, nil
}

// process applies one verified event to its transaction under the
// per-transaction lock. The ledger append happens before the webhook record is
// marked processed, so an acknowledged transition always has its durable fact.
func (s *IngestionService) process(ctx context.Context, record *payment.WebhookEvent, event *payment.ProviderEvent) error {
	tx, err := s.txRepo.FindByProviderRef(ctx, event.Provider, event.ProviderRef)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}
	if tx == nil {
		return ErrUnknownTransaction
	}

	s.txLocks.Lock(tx.ID.String())
	defer s.txLocks.Unlock(tx.ID.String())

	// reload under the lock; a concurrent event may have advanced the state
	tx, err = s.txRepo.FindByID(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to reload transaction: %w", err)
	}
	if tx == nil {
		return ErrUnknownTransaction
	}

	outcome, err := tx.Apply(event)
	if err != nil {
		return fmt.Errorf("failed to apply event: %w", err)
	}

	if !outcome.Applied {
		s.logger.Info("Stale event acknowledged as no-op",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("current_state", tx.State.String()),
			zap.String("event_kind", string(event.Kind)))
		return s.markProcessed(ctx, record)
	}

	if err := s.ledgerService.AppendForTransition(ctx, tx, outcome.To); err != nil {
		return fmt.Errorf("failed to append ledger entry for transition: %w", err)
	}

	if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	s.logger.Info("Transaction transitioned",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("from", outcome.From.String()),
		zap.String("to", outcome.To.String()))

	if outcome.To == payment.TransactionStateAuthorized {
		s.triggerCapture(ctx, tx)
	}

	if outcome.To.IsTerminal() {
		s.recordContributionOutcome(ctx, tx, outcome.To)
	}

	s.publishDomainEvents(ctx, tx)
	return s.markProcessed(ctx, record)
}

// triggerCapture asks the provider to capture a freshly authorized hold. A
// failure here is not terminal: the transaction stays authorized and the
// reconciliation poller picks it up.
func (s *IngestionService) triggerCapture(ctx context.Context, tx *payment.Transaction) {
	adapter, ok := s.adapters[tx.Provider]
	if !ok {
		s.logger.Error("No adapter for authorized transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("provider", tx.Provider.String()))
		return
	}
	if err := tx.BeginCapture(); err != nil {
		return
	}
	if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
		s.logger.Warn("Failed to persist capturing state", zap.Error(err))
		return
	}
	if _, err := adapter.Capture(ctx, tx.ProviderRef); err != nil {
		s.logger.Warn("Capture call failed; awaiting reconciliation",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}
}

// recordContributionOutcome surfaces the terminal state on the contribution
// and notifies the donor-facing collaborator. Failures here never unwind the
// ledger.
func (s *IngestionService) recordContributionOutcome(ctx context.Context, tx *payment.Transaction, state payment.TransactionState) {
	var outcome campaign.ContributionState
	switch state {
	case payment.TransactionStateSettled:
		outcome = campaign.ContributionStateSettled
	case payment.TransactionStateRefunded:
		outcome = campaign.ContributionStateRefunded
	case payment.TransactionStateFailed:
		outcome = campaign.ContributionStateFailed
	default:
		return
	}

	contrib, err := s.contribRepo.FindByID(ctx, tx.ContributionID)
	if err != nil || contrib == nil {
		s.logger.Warn("Contribution not found for outcome",
			zap.String("contribution_id", tx.ContributionID.String()))
		return
	}
	if err := contrib.MarkOutcome(outcome); err != nil {
		// already terminal; nothing to record
		return
	}
	if err := s.contribRepo.Save(ctx, contrib); err != nil {
		s.logger.Warn("Failed to save contribution outcome", zap.Error(err))
		return
	}

	if s.publisher != nil {
		event := campaign.NewContributionOutcomeEvent(contrib.ID, outcome)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish contribution outcome", zap.Error(err))
		}
	}
}

func (s *IngestionService) publishDomainEvents(ctx context.Context, tx *payment.Transaction) {
	if s.publisher == nil {
		return
	}
	events := tx.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish transaction events", zap.Error(err))
	}
	tx.ClearDomainEvents()
}

func (s *IngestionService) markProcessed(ctx context.Context, record *payment.WebhookEvent) error {
	if err := s.webhookRepo.MarkProcessed(ctx, record.ID); err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}
