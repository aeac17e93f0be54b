package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giveflow/backend/internal/domain/compliance"
	"github.com/giveflow/backend/internal/domain/shared"
)

// serialCounter backs the per-fiscal-year serial sequence for compliance
// records. A counter row is bumped atomically on every reservation.
type serialCounter struct {
	FiscalYear int   `gorm:"primaryKey"`
	Value      int64 `gorm:"not null"`
}

// TableName returns the database table name
func (serialCounter) TableName() string {
	return "compliance_serial_counters"
}

// GormRecordRepository implements compliance.RecordRepository using GORM.
// Records are insert-only.
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository creates a new GormRecordRepository
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// Insert appends a record. The unique index on ledger_entry_id makes the
// write-once rule hold under concurrent generators.
func (r *GormRecordRepository) Insert(ctx context.Context, rec *compliance.Record) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID finds a record by ID
func (r *GormRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*compliance.Record, error) {
	var rec compliance.Record
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// FindByLedgerEntry finds the record issued for a ledger entry, if any
func (r *GormRecordRepository) FindByLedgerEntry(ctx context.Context, ledgerEntryID uuid.UUID) (*compliance.Record, error) {
	var rec compliance.Record
	if err := r.db.WithContext(ctx).Where("ledger_entry_id = ?", ledgerEntryID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// FindByDonor finds a donor's records, newest first
func (r *GormRecordRepository) FindByDonor(ctx context.Context, donorID uuid.UUID, filter shared.Filter) ([]compliance.Record, error) {
	var records []compliance.Record
	query := r.db.WithContext(ctx).Where("donor_id = ?", donorID)
	query = applyRecordPagination(query, filter)
	if err := query.Order("issued_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByCampaign finds a campaign's records, chronologically ordered
func (r *GormRecordRepository) FindByCampaign(ctx context.Context, campaignID uuid.UUID, filter shared.Filter) ([]compliance.Record, error) {
	var records []compliance.Record
	query := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	query = applyRecordPagination(query, filter)
	if err := query.Order("issued_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByDonorAndYear finds a donor's records for a fiscal year
func (r *GormRecordRepository) FindByDonorAndYear(ctx context.Context, donorID uuid.UUID, fiscalYear int) ([]compliance.Record, error) {
	var records []compliance.Record
	if err := r.db.WithContext(ctx).
		Where("donor_id = ? AND fiscal_year = ?", donorID, fiscalYear).
		Order("issued_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindIssuedInRange finds records issued within a time window
func (r *GormRecordRepository) FindIssuedInRange(ctx context.Context, from, to time.Time, filter shared.Filter) ([]compliance.Record, error) {
	var records []compliance.Record
	query := r.db.WithContext(ctx).Where("issued_at >= ? AND issued_at <= ?", from, to)
	query = applyRecordPagination(query, filter)
	if err := query.Order("issued_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// NextSequence reserves the next serial sequence for a fiscal year. The upsert
// bumps the counter row atomically so two generators can never reserve the
// same serial.
func (r *GormRecordRepository) NextSequence(ctx context.Context, fiscalYear int) (int64, error) {
	var value int64
	if err := r.db.WithContext(ctx).Raw(
		`INSERT INTO compliance_serial_counters (fiscal_year, value) VALUES (?, 1)
		 ON CONFLICT (fiscal_year) DO UPDATE SET value = compliance_serial_counters.value + 1
		 RETURNING value`,
		fiscalYear,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func applyRecordPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query
}

// Ensure GormRecordRepository implements RecordRepository
var _ compliance.RecordRepository = (*GormRecordRepository)(nil)
