package campaign

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// CampaignFilter defines filtering options for campaign queries
type CampaignFilter struct {
	shared.Filter
	Category *Category
	State    *CampaignState
}

// CampaignRepository defines the interface for campaign persistence
type CampaignRepository interface {
	// FindByID finds a campaign by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Campaign, error)

	// FindAll finds campaigns with filtering
	FindAll(ctx context.Context, filter CampaignFilter) ([]Campaign, error)

	// FindExpiredActive finds active campaigns whose deadline has passed
	FindExpiredActive(ctx context.Context, limit int) ([]Campaign, error)

	// Save creates or updates a campaign
	Save(ctx context.Context, c *Campaign) error

	// Count counts campaigns matching a filter
	Count(ctx context.Context, filter CampaignFilter) (int64, error)

	// CountClosedByOutcome counts closed campaigns with the given outcome
	CountClosedByOutcome(ctx context.Context, outcome CampaignOutcome) (int64, error)

	// AverageGoal returns the mean funding goal across all campaigns
	AverageGoal(ctx context.Context) (decimal.Decimal, error)
}

// ContributionRepository defines the interface for contribution persistence
type ContributionRepository interface {
	// FindByID finds a contribution by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Contribution, error)

	// FindByCampaign finds contributions for a campaign
	FindByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]Contribution, error)

	// FindBySchedulePeriod finds the contribution a schedule produced for a
	// period, if any; the scheduler's firing idempotency check
	FindBySchedulePeriod(ctx context.Context, scheduleID uuid.UUID, periodKey string) (*Contribution, error)

	// Save creates or updates a contribution
	Save(ctx context.Context, c *Contribution) error
}
