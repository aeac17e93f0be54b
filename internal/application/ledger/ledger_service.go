package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/domain/shared/valueobject"
)

// entryKindFor maps a committed transaction state to the ledger fact it
// produces; states outside the four recording points produce nothing
func entryKindFor(state payment.TransactionState) (ledger.EntryKind, bool) {
	switch state {
	case payment.TransactionStateCaptured:
		return ledger.EntryCaptured, true
	case payment.TransactionStateSettled:
		return ledger.EntrySettled, true
	case payment.TransactionStateRefunded:
		return ledger.EntryRefunded, true
	case payment.TransactionStateFailed:
		return ledger.EntryFailed, true
	}
	return "", false
}

// BalanceCache is an eventual-consistent cache over the ledger fold. The log
// is the source of truth; a miss or an error always falls back to a recompute.
type BalanceCache interface {
	// Get returns the cached balance and whether the key was present
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	// Set stores a balance
	Set(ctx context.Context, key string, balance decimal.Decimal) error
	// Invalidate drops a key
	Invalidate(ctx context.Context, key string) error
}

// LedgerService is the single write path into the ledger log and the balance
// read surface. Append enforces the refund cap; the storage layer enforces the
// (transaction, kind) uniqueness.
type LedgerService struct {
	entries        ledger.EntryRepository
	cache          BalanceCache
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// LedgerServiceConfig holds dependencies for the ledger service
type LedgerServiceConfig struct {
	EntryRepo      ledger.EntryRepository
	Cache          BalanceCache
	EventPublisher shared.EventPublisher
	Logger         *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(config LedgerServiceConfig) *LedgerService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		entries:        config.EntryRepo,
		cache:          config.Cache,
		eventPublisher: config.EventPublisher,
		logger:         logger,
	}
}

func campaignBalanceKey(id uuid.UUID) string {
	return fmt.Sprintf("balance:campaign:%s", id)
}

func donorBalanceKey(id uuid.UUID) string {
	return fmt.Sprintf("balance:donor:%s", id)
}

// Append durably appends one entry. A re-delivered transition producing an
// identical (transaction, kind) entry returns ledger.ErrDuplicateEntry and has
// no effect. Refund entries are capped at the settled amount of their
// predecessor minus refunds already applied.
func (s *LedgerService) Append(ctx context.Context, entry *ledger.Entry) error {
	if entry.Kind == ledger.EntryRefunded {
		if err := s.checkRefundCap(ctx, entry); err != nil {
			return err
		}
	}

	if err := s.entries.Append(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			s.logger.Info("Duplicate ledger append rejected",
				zap.String("entry_key", entry.Key()))
			return ledger.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	s.logger.Info("Ledger entry appended",
		zap.String("entry_id", entry.ID.String()),
		zap.String("entry_key", entry.Key()),
		zap.String("kind", entry.Kind.String()),
		zap.String("amount", entry.Amount.String()))

	// drop stale cached balances; the next read refolds
	if s.cache != nil && !entry.SignedAmount().IsZero() {
		if err := s.cache.Invalidate(ctx, campaignBalanceKey(entry.CampaignID)); err != nil {
			s.logger.Warn("Failed to invalidate campaign balance cache", zap.Error(err))
		}
		if err := s.cache.Invalidate(ctx, donorBalanceKey(entry.DonorID)); err != nil {
			s.logger.Warn("Failed to invalidate donor balance cache", zap.Error(err))
		}
	}

	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(ctx, ledger.NewEntryAppendedEvent(entry)); err != nil {
			s.logger.Warn("Failed to publish ledger entry event",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// checkRefundCap rejects refunds that would exceed the settled amount of the
// predecessor entry
func (s *LedgerService) checkRefundCap(ctx context.Context, entry *ledger.Entry) error {
	if entry.PredecessorID == nil {
		return ledger.ErrInvariantViolation
	}
	settled, err := s.entries.FindByID(ctx, *entry.PredecessorID)
	if err != nil {
		return fmt.Errorf("failed to load refund predecessor: %w", err)
	}
	if settled == nil || settled.Kind != ledger.EntrySettled {
		return ledger.ErrInvariantViolation
	}
	refunded, err := s.entries.SumRefundedByPredecessor(ctx, settled.ID)
	if err != nil {
		return fmt.Errorf("failed to sum prior refunds: %w", err)
	}
	if refunded.Add(entry.Amount).GreaterThan(settled.Amount) {
		s.logger.Warn("Refund exceeds settled amount",
			zap.String("settled_entry_id", settled.ID.String()),
			zap.String("settled", settled.Amount.String()),
			zap.String("already_refunded", refunded.String()),
			zap.String("requested", entry.Amount.String()))
		return ledger.ErrInvariantViolation
	}
	return nil
}

// BalanceOfCampaign returns the campaign's raised amount: settled minus
// refunded, served from cache when warm
func (s *LedgerService) BalanceOfCampaign(ctx context.Context, campaignID uuid.UUID) (valueobject.Money, error) {
	return s.balance(ctx, campaignBalanceKey(campaignID), func() (decimal.Decimal, error) {
		return s.entries.SumByCampaign(ctx, campaignID)
	})
}

// BalanceOfDonor returns the donor's lifetime giving
func (s *LedgerService) BalanceOfDonor(ctx context.Context, donorID uuid.UUID) (valueobject.Money, error) {
	return s.balance(ctx, donorBalanceKey(donorID), func() (decimal.Decimal, error) {
		return s.entries.SumByDonor(ctx, donorID)
	})
}

func (s *LedgerService) balance(ctx context.Context, key string, fold func() (decimal.Decimal, error)) (valueobject.Money, error) {
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return valueobject.NewMoneyUSD(cached), nil
		}
	}

	sum, err := fold()
	if err != nil {
		return valueobject.ZeroUSD(), fmt.Errorf("failed to fold balance: %w", err)
	}
	// the fold can momentarily dip below zero only on a broken log; clamp reads,
	// the invariant is enforced on the write path
	if sum.IsNegative() {
		s.logger.Error("Ledger fold produced a negative balance",
			zap.String("key", key),
			zap.String("sum", sum.String()))
		sum = decimal.Zero
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, sum); err != nil {
			s.logger.Warn("Failed to cache balance", zap.String("key", key), zap.Error(err))
		}
	}
	return valueobject.NewMoneyUSD(sum), nil
}

// TotalRaised folds the whole log; platform statistics input
func (s *LedgerService) TotalRaised(ctx context.Context) (valueobject.Money, error) {
	sum, err := s.entries.SumTotal(ctx)
	if err != nil {
		return valueobject.ZeroUSD(), fmt.Errorf("failed to fold total raised: %w", err)
	}
	return valueobject.NewMoneyUSD(sum), nil
}

// RebuildCampaignBalance recomputes a campaign balance from the log and
// repopulates the cache. The log alone is sufficient: no other state feeds
// the rebuild.
func (s *LedgerService) RebuildCampaignBalance(ctx context.Context, campaignID uuid.UUID) (valueobject.Money, error) {
	key := campaignBalanceKey(campaignID)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("Failed to invalidate balance cache for rebuild", zap.Error(err))
		}
	}
	entries, err := s.entries.FindByCampaign(ctx, campaignID)
	if err != nil {
		return valueobject.ZeroUSD(), fmt.Errorf("failed to load campaign entries: %w", err)
	}
	sum := ledger.FoldBalance(entries)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, sum); err != nil {
			s.logger.Warn("Failed to cache rebuilt balance", zap.Error(err))
		}
	}
	return valueobject.NewMoneyUSD(sum), nil
}

// AppendForTransition appends the ledger fact for a committed transition, if
// the reached state records one. This runs before the triggering event is
// acknowledged: no state advances without a durable fact. A duplicate append
// from a re-delivered transition is absorbed silently.
func (s *LedgerService) AppendForTransition(ctx context.Context, tx *payment.Transaction, reached payment.TransactionState) error {
	kind, ok := entryKindFor(reached)
	if !ok {
		return nil
	}

	amount := tx.Amount
	if tx.MovedAmount.IsPositive() {
		amount = tx.MovedAmount
	}

	var predecessor *uuid.UUID
	if kind == ledger.EntryRefunded {
		settled, err := s.entries.FindByKey(ctx, tx.ID, ledger.EntrySettled)
		if err != nil {
			return fmt.Errorf("failed to find settled entry for refund: %w", err)
		}
		if settled == nil {
			return ledger.ErrInvariantViolation
		}
		predecessor = &settled.ID
	}

	entry, err := ledger.NewEntry(tx.ID, tx.ContributionID, tx.CampaignID, tx.DonorID, kind, amount, tx.Currency, predecessor)
	if err != nil {
		return err
	}
	if err := s.Append(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return nil
		}
		return err
	}
	return nil
}

// EntriesForTransaction returns a transaction's entries in append order
func (s *LedgerService) EntriesForTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	return s.entries.FindByTransaction(ctx, transactionID)
}
