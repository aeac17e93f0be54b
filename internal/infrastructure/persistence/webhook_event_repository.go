package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

// GormWebhookEventRepository implements payment.WebhookEventRepository using GORM
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// SaveNew persists the dedup record. The unique index on the dedup key makes
// this the authoritative duplicate check: a redelivered notification collides
// here no matter what the fast-path cache said.
func (r *GormWebhookEventRepository) SaveNew(ctx context.Context, event *payment.WebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByDedupKey finds a dedup record by its key
func (r *GormWebhookEventRepository) FindByDedupKey(ctx context.Context, key string) (*payment.WebhookEvent, error) {
	var event payment.WebhookEvent
	if err := r.db.WithContext(ctx).Where("dedup_key = ?", key).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// FindUnprocessed finds persisted-but-unprocessed events for restart recovery
func (r *GormWebhookEventRepository) FindUnprocessed(ctx context.Context, limit int) ([]payment.WebhookEvent, error) {
	var events []payment.WebhookEvent
	query := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkProcessed marks a dedup record as consumed by the state machine
func (r *GormWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&payment.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": now,
			"updated_at":   now,
		}).Error
}

// Ensure GormWebhookEventRepository implements WebhookEventRepository
var _ payment.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
