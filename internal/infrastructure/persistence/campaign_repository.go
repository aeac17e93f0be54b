package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/campaign"
)

// GormCampaignRepository implements campaign.CampaignRepository using GORM
type GormCampaignRepository struct {
	db *gorm.DB
}

// NewGormCampaignRepository creates a new GormCampaignRepository
func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

// FindByID finds a campaign by ID
func (r *GormCampaignRepository) FindByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	var c campaign.Campaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindAll finds campaigns with filtering
func (r *GormCampaignRepository) FindAll(ctx context.Context, filter campaign.CampaignFilter) ([]campaign.Campaign, error) {
	var campaigns []campaign.Campaign
	query := r.applyFilter(r.db.WithContext(ctx).Model(&campaign.Campaign{}), filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := filter.OrderDir
	if orderDir != "asc" {
		orderDir = "desc"
	}
	query = query.Order(orderBy + " " + orderDir)

	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// FindExpiredActive finds active campaigns whose deadline has passed
func (r *GormCampaignRepository) FindExpiredActive(ctx context.Context, limit int) ([]campaign.Campaign, error) {
	var campaigns []campaign.Campaign
	query := r.db.WithContext(ctx).
		Where("state = ? AND deadline < ?", campaign.CampaignStateActive, time.Now()).
		Order("deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Save creates or updates a campaign
func (r *GormCampaignRepository) Save(ctx context.Context, c *campaign.Campaign) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// Count counts campaigns matching a filter
func (r *GormCampaignRepository) Count(ctx context.Context, filter campaign.CampaignFilter) (int64, error) {
	var total int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&campaign.Campaign{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CountClosedByOutcome counts closed campaigns with the given outcome
func (r *GormCampaignRepository) CountClosedByOutcome(ctx context.Context, outcome campaign.CampaignOutcome) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&campaign.Campaign{}).
		Where("state = ? AND outcome = ?", campaign.CampaignStateClosed, outcome).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// AverageGoal returns the mean funding goal across all campaigns
func (r *GormCampaignRepository) AverageGoal(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Average decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&campaign.Campaign{}).
		Select("COALESCE(AVG(goal), 0) AS average").
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Average, nil
}

func (r *GormCampaignRepository) applyFilter(query *gorm.DB, filter campaign.CampaignFilter) *gorm.DB {
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}
	return query
}

// Ensure GormCampaignRepository implements CampaignRepository
var _ campaign.CampaignRepository = (*GormCampaignRepository)(nil)
