package recurring

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// Interval is the cadence of a recurrence schedule
type Interval string

const (
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
)

// IsValid returns true if the interval is known
func (i Interval) IsValid() bool {
	return i == IntervalWeekly || i == IntervalMonthly
}

// ScheduleState represents the schedule lifecycle
type ScheduleState string

const (
	ScheduleStateActive    ScheduleState = "ACTIVE"
	ScheduleStatePaused    ScheduleState = "PAUSED"
	ScheduleStateSuspended ScheduleState = "SUSPENDED"
	ScheduleStateCancelled ScheduleState = "CANCELLED"
)

// MaxConsecutiveFailures suspends a schedule after this many failed fires in a
// row, so a dead card does not get retried forever
const MaxConsecutiveFailures = 3

// Schedule is a standing instruction to contribute to a campaign on a cadence.
// Each fire produces a fresh contribution keyed to the period, so re-running a
// period can never charge the donor twice.
type Schedule struct {
	shared.BaseAggregateRoot

	DonorID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CampaignID uuid.UUID `gorm:"type:uuid;not null;index"`

	Amount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency string          `gorm:"size:3;not null"`

	MethodScheme string `gorm:"size:30;not null"`
	MethodToken  string `gorm:"size:128;not null"`

	Interval     Interval      `gorm:"size:10;not null"`
	NextFireTime time.Time     `gorm:"not null;index"`
	State        ScheduleState `gorm:"size:10;not null;index"`

	// ConsecutiveFailures counts failed fires since the last success
	ConsecutiveFailures int        `gorm:"not null;default:0"`
	LastFiredAt         *time.Time `gorm:""`
}

// TableName returns the database table name
func (Schedule) TableName() string {
	return "recurrence_schedules"
}

// NewSchedule creates an active schedule whose first fire is one interval out
func NewSchedule(
	donorID, campaignID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	methodScheme, methodToken string,
	interval Interval,
	start time.Time,
) (*Schedule, error) {
	if donorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DONOR", "Donor ID cannot be empty")
	}
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Schedule amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if methodToken == "" {
		return nil, shared.NewDomainError("INVALID_METHOD", "Payment method token cannot be empty")
	}
	if !interval.IsValid() {
		return nil, shared.NewDomainError("INVALID_INTERVAL", "Unknown recurrence interval")
	}

	s := &Schedule{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DonorID:           donorID,
		CampaignID:        campaignID,
		Amount:            amount,
		Currency:          currency,
		MethodScheme:      methodScheme,
		MethodToken:       methodToken,
		Interval:          interval,
		NextFireTime:      start,
		State:             ScheduleStateActive,
	}
	s.AddDomainEvent(NewScheduleCreatedEvent(s))
	return s, nil
}

// IsDue returns true when an active schedule should fire
func (s *Schedule) IsDue(now time.Time) bool {
	return s.State == ScheduleStateActive && !now.Before(s.NextFireTime)
}

// PeriodKeyFor names the period a fire at the given time belongs to. The key
// is stable across retries within the same period.
func (s *Schedule) PeriodKeyFor(at time.Time) string {
	at = at.UTC()
	switch s.Interval {
	case IntervalWeekly:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return fmt.Sprintf("%04d-%02d", at.Year(), int(at.Month()))
	}
}

// advance returns the next fire time after the given one
func (s *Schedule) advance(from time.Time) time.Time {
	if s.Interval == IntervalWeekly {
		return from.AddDate(0, 0, 7)
	}
	return from.AddDate(0, 1, 0)
}

// RecordFireSucceeded advances the schedule past a successful fire
func (s *Schedule) RecordFireSucceeded(at time.Time) {
	s.ConsecutiveFailures = 0
	s.LastFiredAt = &at
	s.NextFireTime = s.advance(s.NextFireTime)
	s.UpdatedAt = time.Now()
}

// RecordFireFailed counts a failed fire and suspends the schedule once the
// failure ceiling is reached. The period is still consumed: the schedule moves
// to the next period rather than hammering the same one.
func (s *Schedule) RecordFireFailed(at time.Time) {
	s.ConsecutiveFailures++
	s.LastFiredAt = &at
	s.NextFireTime = s.advance(s.NextFireTime)
	s.UpdatedAt = time.Now()
	if s.ConsecutiveFailures >= MaxConsecutiveFailures {
		s.State = ScheduleStateSuspended
		s.AddDomainEvent(NewScheduleSuspendedEvent(s))
	}
}

// Pause stops firing until Resume is called
func (s *Schedule) Pause() error {
	if s.State != ScheduleStateActive {
		return shared.ErrInvalidState
	}
	s.State = ScheduleStatePaused
	s.UpdatedAt = time.Now()
	return nil
}

// Resume reactivates a paused or suspended schedule and clears the failure
// count; resuming from suspension implies the donor fixed the instrument
func (s *Schedule) Resume(now time.Time) error {
	if s.State != ScheduleStatePaused && s.State != ScheduleStateSuspended {
		return shared.ErrInvalidState
	}
	s.State = ScheduleStateActive
	s.ConsecutiveFailures = 0
	if s.NextFireTime.Before(now) {
		s.NextFireTime = now
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Cancel permanently ends the schedule
func (s *Schedule) Cancel() error {
	if s.State == ScheduleStateCancelled {
		return shared.ErrInvalidState
	}
	s.State = ScheduleStateCancelled
	s.UpdatedAt = time.Now()
	s.AddDomainEvent(NewScheduleCancelledEvent(s))
	return nil
}
