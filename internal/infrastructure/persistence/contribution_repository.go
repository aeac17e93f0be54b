package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/shared"
)

// GormContributionRepository implements campaign.ContributionRepository using GORM
type GormContributionRepository struct {
	db *gorm.DB
}

// NewGormContributionRepository creates a new GormContributionRepository
func NewGormContributionRepository(db *gorm.DB) *GormContributionRepository {
	return &GormContributionRepository{db: db}
}

// FindByID finds a contribution by ID
func (r *GormContributionRepository) FindByID(ctx context.Context, id uuid.UUID) (*campaign.Contribution, error) {
	var c campaign.Contribution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindByCampaign finds contributions for a campaign
func (r *GormContributionRepository) FindByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]campaign.Contribution, error) {
	var contributions []campaign.Contribution
	query := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	query = query.Order("created_at DESC")

	if err := query.Find(&contributions).Error; err != nil {
		return nil, err
	}
	return contributions, nil
}

// FindBySchedulePeriod finds the contribution a schedule produced for a period
func (r *GormContributionRepository) FindBySchedulePeriod(ctx context.Context, scheduleID uuid.UUID, periodKey string) (*campaign.Contribution, error) {
	var c campaign.Contribution
	if err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND period_key = ?", scheduleID, periodKey).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Save creates or updates a contribution
func (r *GormContributionRepository) Save(ctx context.Context, c *campaign.Contribution) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// Ensure GormContributionRepository implements ContributionRepository
var _ campaign.ContributionRepository = (*GormContributionRepository)(nil)
