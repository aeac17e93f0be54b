package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/recurring"
	"github.com/giveflow/backend/internal/domain/shared"
)

// GormScheduleRepository implements recurring.ScheduleRepository using GORM
type GormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository creates a new GormScheduleRepository
func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

// FindByID finds a schedule by ID
func (r *GormScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*recurring.Schedule, error) {
	var s recurring.Schedule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindByDonor finds schedules for a donor
func (r *GormScheduleRepository) FindByDonor(ctx context.Context, donorID uuid.UUID, filter shared.Filter) ([]recurring.Schedule, error) {
	var schedules []recurring.Schedule
	query := r.db.WithContext(ctx).Where("donor_id = ?", donorID)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	query = query.Order("created_at DESC")

	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// FindDue finds active schedules whose fire time has arrived, oldest first
func (r *GormScheduleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]recurring.Schedule, error) {
	var schedules []recurring.Schedule
	query := r.db.WithContext(ctx).
		Where("state = ? AND next_fire_time <= ?", recurring.ScheduleStateActive, now).
		Order("next_fire_time ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// Save creates or updates a schedule
func (r *GormScheduleRepository) Save(ctx context.Context, s *recurring.Schedule) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// Ensure GormScheduleRepository implements ScheduleRepository
var _ recurring.ScheduleRepository = (*GormScheduleRepository)(nil)
