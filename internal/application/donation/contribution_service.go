package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/application/ledger"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

var (
	// ErrCampaignNotAccepting is returned when the target campaign is not
	// active or past its deadline
	ErrCampaignNotAccepting = errors.New("donation: campaign not accepting contributions")
	// ErrNotRefundable is returned when a refund is requested for a
	// transaction that has not settled
	ErrNotRefundable = errors.New("donation: transaction not refundable")
	// ErrRefundExceedsSettled is returned when the requested refund is larger
	// than the transaction's settled amount
	ErrRefundExceedsSettled = errors.New("donation: refund exceeds settled amount")
)

// RetryPolicy bounds how provider calls are retried on transient failures.
// The idempotency key is stable across retries of the same attempt, so a
// retry the provider already executed is recognized as a repeat.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default bounded exponential backoff policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// delayFor returns the backoff delay before the given retry (1-based)
func (p RetryPolicy) delayFor(retry int) time.Duration {
	d := p.BaseDelay << (retry - 1)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// SubmitRequest is a contribution intent entering the pipeline
type SubmitRequest struct {
	CampaignID   uuid.UUID
	DonorID      uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	Tier         campaign.RewardTier
	Provider     payment.ProviderID
	MethodScheme string
	MethodToken  string

	// ScheduleID and PeriodKey are set when a recurrence schedule originated
	// the intent
	ScheduleID *uuid.UUID
	PeriodKey  string

	// Attempt distinguishes retried executions of the same logical charge
	Attempt int
}

// SubmitResult reports the created aggregates and where authorization landed
type SubmitResult struct {
	Contribution *campaign.Contribution
	Transaction  *payment.Transaction
}

// ContributionService drives contribution intents into the provider pipeline:
// validate, persist, authorize with bounded backoff, then hand the rest of the
// lifecycle to webhook ingestion.
type ContributionService struct {
	adapters      map[payment.ProviderID]payment.ProviderAdapter
	campaignRepo  campaign.CampaignRepository
	contribRepo   campaign.ContributionRepository
	txRepo        payment.TransactionRepository
	ledgerService *ledger.LedgerService
	publisher     shared.EventPublisher
	retry         RetryPolicy
	logger        *zap.Logger
}

// ContributionServiceConfig holds dependencies for the contribution service
type ContributionServiceConfig struct {
	Adapters         []payment.ProviderAdapter
	CampaignRepo     campaign.CampaignRepository
	ContributionRepo campaign.ContributionRepository
	TransactionRepo  payment.TransactionRepository
	LedgerService    *ledger.LedgerService
	EventPublisher   shared.EventPublisher
	Retry            RetryPolicy
	Logger           *zap.Logger
}

// NewContributionService creates a new ContributionService
func NewContributionService(config ContributionServiceConfig) *ContributionService {
	adapters := make(map[payment.ProviderID]payment.ProviderAdapter)
	for _, a := range config.Adapters {
		adapters[a.ProviderID()] = a
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &ContributionService{
		adapters:      adapters,
		campaignRepo:  config.CampaignRepo,
		contribRepo:   config.ContributionRepo,
		txRepo:        config.TransactionRepo,
		ledgerService: config.LedgerService,
		publisher:     config.EventPublisher,
		retry:         retry,
		logger:        logger,
	}
}

// Submit validates the intent, persists the contribution and its transaction,
// and authorizes against the provider. Declines terminate the transaction;
// transient failures are retried with backoff up to the attempt ceiling and
// then terminate it.
func (s *ContributionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	adapter, ok := s.adapters[req.Provider]
	if !ok {
		return nil, payment.ErrUnknownProvider
	}

	c, err := s.campaignRepo.FindByID(ctx, req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, shared.ErrNotFound
	}
	if !c.AcceptsContributions() {
		return nil, ErrCampaignNotAccepting
	}

	contrib, err := s.newContribution(req)
	if err != nil {
		return nil, err
	}
	if err := s.contribRepo.Save(ctx, contrib); err != nil {
		return nil, fmt.Errorf("failed to save contribution: %w", err)
	}
	s.publishEvents(ctx, contrib.GetDomainEvents())
	contrib.ClearDomainEvents()

	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}
	tx, err := payment.NewTransaction(contrib.ID, req.CampaignID, req.DonorID, req.Provider, req.Amount, req.Currency, attempt)
	if err != nil {
		return nil, err
	}
	if err := tx.BeginAuthorize(); err != nil {
		return nil, err
	}
	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	result := &SubmitResult{Contribution: contrib, Transaction: tx}
	if err := s.authorize(ctx, adapter, tx, req); err != nil {
		return result, err
	}
	return result, nil
}

func (s *ContributionService) newContribution(req SubmitRequest) (*campaign.Contribution, error) {
	if req.ScheduleID != nil {
		return campaign.NewScheduledContribution(req.CampaignID, req.DonorID, *req.ScheduleID,
			req.Amount, req.Currency, req.Tier, req.MethodScheme, req.MethodToken, req.PeriodKey)
	}
	return campaign.NewContribution(req.CampaignID, req.DonorID,
		req.Amount, req.Currency, req.Tier, req.MethodScheme, req.MethodToken)
}

// authorize runs the provider authorize call under the retry policy. The
// same idempotency key is passed on every retry of this attempt.
func (s *ContributionService) authorize(ctx context.Context, adapter payment.ProviderAdapter, tx *payment.Transaction, req SubmitRequest) error {
	method := payment.MethodDescriptor{Scheme: req.MethodScheme, Token: req.MethodToken}

	var lastErr error
	for try := 1; try <= s.retry.MaxAttempts; try++ {
		res, err := adapter.Authorize(ctx, tx.Amount, tx.Currency, method, tx.IdempotencyKey)
		if err == nil {
			return s.onAuthorized(ctx, adapter, tx, res)
		}

		if errors.Is(err, payment.ErrProviderDeclined) {
			return s.failTerminally(ctx, tx, "provider declined", err)
		}
		if !payment.IsTransient(err) {
			return s.failTerminally(ctx, tx, err.Error(), err)
		}

		lastErr = err
		s.logger.Warn("Transient authorize failure",
			zap.String("transaction_id", tx.ID.String()),
			zap.Int("try", try),
			zap.Error(err))

		if try < s.retry.MaxAttempts {
			select {
			case <-ctx.Done():
				// the call may have landed on the provider's side; leave the
				// transaction authorizing for reconciliation
				return ctx.Err()
			case <-time.After(s.retry.delayFor(try)):
			}
		}
	}

	return s.failTerminally(ctx, tx, "authorize retry ceiling exhausted", lastErr)
}

func (s *ContributionService) onAuthorized(ctx context.Context, adapter payment.ProviderAdapter, tx *payment.Transaction, res *payment.AuthorizeResult) error {
	if err := tx.AttachProviderRef(res.ProviderRef); err != nil {
		return err
	}

	if !res.Pending {
		// the provider confirmed synchronously; advance and capture now
		outcome, err := tx.Apply(&payment.ProviderEvent{
			Provider:    tx.Provider,
			ProviderRef: res.ProviderRef,
			Kind:        payment.EventAuthorized,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			OccurredAt:  time.Now(),
		})
		if err != nil {
			return err
		}
		if outcome.Applied {
			if err := tx.BeginCapture(); err == nil {
				if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
					return fmt.Errorf("failed to save transaction: %w", err)
				}
				if _, err := adapter.Capture(ctx, tx.ProviderRef); err != nil {
					s.logger.Warn("Capture call failed; awaiting reconciliation",
						zap.String("transaction_id", tx.ID.String()),
						zap.Error(err))
				}
				return nil
			}
		}
	}

	if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	s.logger.Info("Authorization accepted",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("provider_ref", tx.ProviderRef),
		zap.Bool("pending", res.Pending))
	return nil
}

// failTerminally marks the transaction failed, appends the failed ledger fact,
// and surfaces the outcome on the contribution
func (s *ContributionService) failTerminally(ctx context.Context, tx *payment.Transaction, reason string, cause error) error {
	if err := tx.MarkFailed(reason); err != nil {
		return err
	}
	if err := s.ledgerService.AppendForTransition(ctx, tx, payment.TransactionStateFailed); err != nil {
		return err
	}
	if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
		return fmt.Errorf("failed to save failed transaction: %w", err)
	}

	s.logger.Info("Transaction failed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("reason", reason))

	if contrib, err := s.contribRepo.FindByID(ctx, tx.ContributionID); err == nil && contrib != nil {
		if err := contrib.MarkOutcome(campaign.ContributionStateFailed); err == nil {
			if err := s.contribRepo.Save(ctx, contrib); err != nil {
				s.logger.Warn("Failed to save contribution outcome", zap.Error(err))
			}
			if s.publisher != nil {
				_ = s.publisher.Publish(ctx, campaign.NewContributionOutcomeEvent(contrib.ID, campaign.ContributionStateFailed))
			}
		}
	}

	s.publishEvents(ctx, tx.GetDomainEvents())
	tx.ClearDomainEvents()

	if cause != nil {
		return cause
	}
	return payment.ErrProviderDeclined
}

// RefundTransaction requests a refund for a settled transaction. The state
// moves to refunding; the refunded fact lands when the provider's callback
// confirms it.
func (s *ContributionService) RefundTransaction(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal) error {
	tx, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx == nil {
		return shared.ErrNotFound
	}
	if tx.State != payment.TransactionStateSettled {
		return ErrNotRefundable
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(tx.SettledAmount()) {
		return ErrRefundExceedsSettled
	}

	adapter, ok := s.adapters[tx.Provider]
	if !ok {
		return payment.ErrUnknownProvider
	}

	if err := tx.BeginRefund(); err != nil {
		return err
	}
	if err := s.txRepo.SaveWithLock(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	var lastErr error
	for try := 1; try <= s.retry.MaxAttempts; try++ {
		if _, err := adapter.Refund(ctx, tx.ProviderRef, amount); err == nil {
			s.logger.Info("Refund submitted",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("amount", amount.String()))
			return nil
		} else if !payment.IsTransient(err) {
			return err
		} else {
			lastErr = err
		}
		if try < s.retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retry.delayFor(try)):
			}
		}
	}
	// the transaction stays refunding; reconciliation settles the question
	return lastErr
}

// GetContribution returns a contribution with its transactions
func (s *ContributionService) GetContribution(ctx context.Context, id uuid.UUID) (*campaign.Contribution, []payment.Transaction, error) {
	contrib, err := s.contribRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load contribution: %w", err)
	}
	if contrib == nil {
		return nil, nil, shared.ErrNotFound
	}
	txs, err := s.txRepo.FindByContribution(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return contrib, txs, nil
}

// ListByCampaign returns a campaign's contributions, newest first
func (s *ContributionService) ListByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]campaign.Contribution, error) {
	return s.contribRepo.FindByCampaign(ctx, campaignID, filter)
}

func (s *ContributionService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events", zap.Error(err))
	}
}
