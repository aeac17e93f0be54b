package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appledger "github.com/giveflow/backend/internal/application/ledger"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/domain/shared/valueobject"
)

// Refunder pushes a refund for a settled transaction through the normal
// payment pipeline
type Refunder interface {
	RefundTransaction(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal) error
}

// CampaignService manages campaign lifecycle and derived views. Raised
// amounts always come from the ledger; this service never stores a total.
type CampaignService struct {
	campaigns     campaign.CampaignRepository
	txRepo        payment.TransactionRepository
	ledgerService *appledger.LedgerService
	refunder      Refunder
	publisher     shared.EventPublisher
	logger        *zap.Logger
}

// CampaignServiceConfig holds dependencies for the campaign service
type CampaignServiceConfig struct {
	CampaignRepo    campaign.CampaignRepository
	TransactionRepo payment.TransactionRepository
	LedgerService   *appledger.LedgerService
	Refunder        Refunder
	EventPublisher  shared.EventPublisher
	Logger          *zap.Logger
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(config CampaignServiceConfig) *CampaignService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignService{
		campaigns:     config.CampaignRepo,
		txRepo:        config.TransactionRepo,
		ledgerService: config.LedgerService,
		refunder:      config.Refunder,
		publisher:     config.EventPublisher,
		logger:        logger,
	}
}

// CreateCampaignRequest describes a new campaign
type CreateCampaignRequest struct {
	Title       string
	Creator     string
	Category    campaign.Category
	Description string
	Goal        decimal.Decimal
	Currency    string
	Deadline    time.Time
	// Activate opens the campaign immediately instead of leaving it draft
	Activate bool
}

// CreateCampaign creates a campaign, optionally activating it right away
func (s *CampaignService) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*campaign.Campaign, error) {
	currency := req.Currency
	if currency == "" {
		currency = string(valueobject.DefaultCurrency)
	}
	c, err := campaign.NewCampaign(req.Title, req.Creator, req.Category, req.Goal, currency, req.Deadline, req.Description)
	if err != nil {
		return nil, err
	}
	if req.Activate {
		if err := c.Activate(); err != nil {
			return nil, err
		}
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save campaign: %w", err)
	}
	s.publishEvents(ctx, c)
	return c, nil
}

// ActivateCampaign opens a draft campaign for contributions
func (s *CampaignService) ActivateCampaign(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Activate(); err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save campaign: %w", err)
	}
	s.publishEvents(ctx, c)
	return c, nil
}

// CampaignView is a campaign with its ledger-derived figures
type CampaignView struct {
	Campaign *campaign.Campaign
	Raised   valueobject.Money
	Progress decimal.Decimal
}

// GetCampaign returns a campaign with its raised amount and progress
func (s *CampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*CampaignView, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	raised, err := s.ledgerService.BalanceOfCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignView{
		Campaign: c,
		Raised:   raised,
		Progress: c.Progress(raised.Amount()),
	}, nil
}

// ListCampaigns returns campaigns matching the filter
func (s *CampaignService) ListCampaigns(ctx context.Context, filter campaign.CampaignFilter) (shared.Paginated[campaign.Campaign], error) {
	items, err := s.campaigns.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[campaign.Campaign]{}, fmt.Errorf("failed to list campaigns: %w", err)
	}
	total, err := s.campaigns.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[campaign.Campaign]{}, fmt.Errorf("failed to count campaigns: %w", err)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = shared.DefaultFilter().PageSize
	}
	return shared.NewPaginated(items, total, page, size), nil
}

// PlatformStats summarizes the platform for the public stats endpoint
type PlatformStats struct {
	TotalRaised   valueobject.Money `json:"total_raised"`
	CampaignCount int64             `json:"campaign_count"`
	SuccessRate   decimal.Decimal   `json:"success_rate"`
	AverageGoal   decimal.Decimal   `json:"average_goal"`
}

// Stats computes platform-wide statistics
func (s *CampaignService) Stats(ctx context.Context) (*PlatformStats, error) {
	total, err := s.ledgerService.TotalRaised(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.campaigns.Count(ctx, campaign.CampaignFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	succeeded, err := s.campaigns.CountClosedByOutcome(ctx, campaign.CampaignOutcomeSucceeded)
	if err != nil {
		return nil, fmt.Errorf("failed to count succeeded campaigns: %w", err)
	}
	unfunded, err := s.campaigns.CountClosedByOutcome(ctx, campaign.CampaignOutcomeUnfunded)
	if err != nil {
		return nil, fmt.Errorf("failed to count unfunded campaigns: %w", err)
	}
	avgGoal, err := s.campaigns.AverageGoal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to average goals: %w", err)
	}

	rate := decimal.Zero
	if closed := succeeded + unfunded; closed > 0 {
		rate = decimal.NewFromInt(succeeded).
			Div(decimal.NewFromInt(closed)).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	return &PlatformStats{
		TotalRaised:   total,
		CampaignCount: count,
		SuccessRate:   rate,
		AverageGoal:   avgGoal,
	}, nil
}

// SweepDeadlines closes expired active campaigns with the outcome implied by
// their ledger balance; unfunded campaigns are handed to the refund sweep.
// Returns how many campaigns were closed.
func (s *CampaignService) SweepDeadlines(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.campaigns.FindExpiredActive(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired campaigns: %w", err)
	}

	closed := 0
	for i := range expired {
		c := &expired[i]
		raised, err := s.ledgerService.BalanceOfCampaign(ctx, c.ID)
		if err != nil {
			s.logger.Error("Failed to read balance for deadline sweep",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err))
			continue
		}
		didClose, err := c.EvaluateDeadline(now, raised.Amount())
		if err != nil || !didClose {
			continue
		}
		if err := s.campaigns.Save(ctx, c); err != nil {
			s.logger.Error("Failed to save closed campaign",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishEvents(ctx, c)
		closed++

		s.logger.Info("Campaign closed by deadline sweep",
			zap.String("campaign_id", c.ID.String()),
			zap.String("outcome", string(c.Outcome)),
			zap.String("raised", raised.String()))

		if c.Outcome == campaign.CampaignOutcomeUnfunded {
			if _, err := s.RefundSweep(ctx, c.ID); err != nil {
				s.logger.Error("Refund sweep failed",
					zap.String("campaign_id", c.ID.String()),
					zap.Error(err))
			}
		}
	}
	return closed, nil
}

// RefundSweep refunds every settled transaction of a campaign through the
// normal refund pipeline. Stored totals are never touched: the balance falls
// as the refunded facts land in the ledger. Returns how many refunds were
// submitted.
func (s *CampaignService) RefundSweep(ctx context.Context, campaignID uuid.UUID) (int, error) {
	settled, err := s.txRepo.FindByCampaignAndState(ctx, campaignID, payment.TransactionStateSettled, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to find settled transactions: %w", err)
	}

	submitted := 0
	for i := range settled {
		tx := &settled[i]
		if err := s.refunder.RefundTransaction(ctx, tx.ID, tx.SettledAmount()); err != nil {
			s.logger.Warn("Refund submission failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err))
			continue
		}
		submitted++
	}

	s.logger.Info("Campaign refund sweep submitted",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("refunds", submitted),
		zap.Int("settled", len(settled)))
	return submitted, nil
}

func (s *CampaignService) load(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := s.campaigns.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (s *CampaignService) publishEvents(ctx context.Context, c *campaign.Campaign) {
	if s.publisher == nil {
		return
	}
	events := c.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish campaign events", zap.Error(err))
	}
	c.ClearDomainEvents()
}
