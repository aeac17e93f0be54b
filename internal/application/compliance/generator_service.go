package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/domain/compliance"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/shared"
)

// ErrNoReceiptToVoid is returned when a refund entry arrives for a settled
// entry that never had a receipt issued
var ErrNoReceiptToVoid = errors.New("compliance: no receipt found for refunded entry")

// GeneratorService issues compliance records off the ledger append stream.
// Settled entries produce receipts; refunded entries produce voiding records
// referencing the receipt of the settled predecessor. Records are write-once:
// a re-delivered append for an entry that already has a record is skipped.
type GeneratorService struct {
	records compliance.RecordRepository
	entries ledger.EntryRepository
	logger  *zap.Logger
}

// GeneratorServiceConfig holds dependencies for the generator service
type GeneratorServiceConfig struct {
	RecordRepo compliance.RecordRepository
	EntryRepo  ledger.EntryRepository
	Logger     *zap.Logger
}

// NewGeneratorService creates a new GeneratorService
func NewGeneratorService(config GeneratorServiceConfig) *GeneratorService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorService{
		records: config.RecordRepo,
		entries: config.EntryRepo,
		logger:  logger,
	}
}

// EventTypes subscribes the generator to ledger appends
func (s *GeneratorService) EventTypes() []string {
	return []string{ledger.EntryAppendedEventType}
}

// Handle processes a ledger append event; only settled and refunded entries
// produce records
func (s *GeneratorService) Handle(ctx context.Context, event shared.DomainEvent) error {
	appended, ok := event.(*ledger.EntryAppendedEvent)
	if !ok {
		return nil
	}
	switch appended.Kind {
	case ledger.EntrySettled:
		_, err := s.issueReceipt(ctx, appended)
		return err
	case ledger.EntryRefunded:
		_, err := s.issueVoid(ctx, appended)
		return err
	default:
		return nil
	}
}

func (s *GeneratorService) issueReceipt(ctx context.Context, e *ledger.EntryAppendedEvent) (*compliance.Record, error) {
	if existing, err := s.records.FindByLedgerEntry(ctx, e.EntryID); err != nil {
		return nil, fmt.Errorf("failed to check existing record: %w", err)
	} else if existing != nil {
		s.logger.Info("Record already issued for entry, skipping",
			zap.String("entry_id", e.EntryID.String()),
			zap.String("serial_no", existing.SerialNo))
		return existing, nil
	}

	issuedAt := e.OccurredAt()
	seq, err := s.records.NextSequence(ctx, issuedAt.UTC().Year())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve serial sequence: %w", err)
	}

	record, err := compliance.NewReceipt(e.EntryID, e.DonorID, e.CampaignID, e.Amount, e.Currency, issuedAt, seq)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, record, e.EntryID); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *GeneratorService) issueVoid(ctx context.Context, e *ledger.EntryAppendedEvent) (*compliance.Record, error) {
	if existing, err := s.records.FindByLedgerEntry(ctx, e.EntryID); err != nil {
		return nil, fmt.Errorf("failed to check existing record: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	if e.PredecessorID == nil {
		return nil, ErrNoReceiptToVoid
	}
	receipt, err := s.records.FindByLedgerEntry(ctx, *e.PredecessorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt for voiding: %w", err)
	}
	if receipt == nil {
		return nil, ErrNoReceiptToVoid
	}

	issuedAt := e.OccurredAt()
	seq, err := s.records.NextSequence(ctx, issuedAt.UTC().Year())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve serial sequence: %w", err)
	}

	record, err := compliance.NewVoid(e.EntryID, e.DonorID, e.CampaignID, e.Amount, e.Currency, issuedAt, seq, receipt.ID)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, record, e.EntryID); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *GeneratorService) insert(ctx context.Context, record *compliance.Record, entryID uuid.UUID) error {
	if err := s.records.Insert(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// concurrent duplicate trigger lost the race; the winner's record stands
			return nil
		}
		return fmt.Errorf("failed to insert compliance record: %w", err)
	}
	s.logger.Info("Compliance record issued",
		zap.String("serial_no", record.SerialNo),
		zap.String("kind", string(record.Kind)),
		zap.String("entry_id", entryID.String()))
	return nil
}

// ExportFilter selects records for audit export
type ExportFilter struct {
	CampaignID *uuid.UUID
	DonorID    *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       shared.Filter
}

// Export returns records matching the filter as a chronologically ordered
// sequence
func (s *GeneratorService) Export(ctx context.Context, filter ExportFilter) ([]compliance.Record, error) {
	page := filter.Page
	if page.PageSize == 0 {
		page = shared.DefaultFilter()
	}
	page.OrderBy = "issued_at"
	page.OrderDir = "asc"

	switch {
	case filter.CampaignID != nil:
		return s.records.FindByCampaign(ctx, *filter.CampaignID, page)
	case filter.DonorID != nil:
		return s.records.FindByDonor(ctx, *filter.DonorID, page)
	case filter.From != nil && filter.To != nil:
		return s.records.FindIssuedInRange(ctx, *filter.From, *filter.To, page)
	default:
		from := time.Time{}
		to := time.Now()
		if filter.From != nil {
			from = *filter.From
		}
		if filter.To != nil {
			to = *filter.To
		}
		return s.records.FindIssuedInRange(ctx, from, to, page)
	}
}

// AnnualStatement returns a donor's records for one fiscal year
func (s *GeneratorService) AnnualStatement(ctx context.Context, donorID uuid.UUID, fiscalYear int) ([]compliance.Record, error) {
	return s.records.FindByDonorAndYear(ctx, donorID, fiscalYear)
}

// Ensure GeneratorService implements the event handler contract
var _ shared.EventHandler = (*GeneratorService)(nil)
