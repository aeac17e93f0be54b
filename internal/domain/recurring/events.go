package recurring

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// ScheduleCreatedEvent is raised when a donor sets up a recurring contribution
type ScheduleCreatedEvent struct {
	shared.BaseDomainEvent
	DonorID    uuid.UUID       `json:"donor_id"`
	CampaignID uuid.UUID       `json:"campaign_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Interval   Interval        `json:"interval"`
}

// EventType returns the event type name
func (e *ScheduleCreatedEvent) EventType() string {
	return "ScheduleCreated"
}

// NewScheduleCreatedEvent creates a new ScheduleCreatedEvent
func NewScheduleCreatedEvent(s *Schedule) *ScheduleCreatedEvent {
	return &ScheduleCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ScheduleCreated", "Schedule", s.ID),
		DonorID:         s.DonorID,
		CampaignID:      s.CampaignID,
		Amount:          s.Amount,
		Currency:        s.Currency,
		Interval:        s.Interval,
	}
}

// ScheduleSuspendedEvent is raised when consecutive failures suspend a schedule
type ScheduleSuspendedEvent struct {
	shared.BaseDomainEvent
	DonorID  uuid.UUID `json:"donor_id"`
	Failures int       `json:"failures"`
}

// EventType returns the event type name
func (e *ScheduleSuspendedEvent) EventType() string {
	return "ScheduleSuspended"
}

// NewScheduleSuspendedEvent creates a new ScheduleSuspendedEvent
func NewScheduleSuspendedEvent(s *Schedule) *ScheduleSuspendedEvent {
	return &ScheduleSuspendedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ScheduleSuspended", "Schedule", s.ID),
		DonorID:         s.DonorID,
		Failures:        s.ConsecutiveFailures,
	}
}

// ScheduleCancelledEvent is raised when a schedule is permanently ended
type ScheduleCancelledEvent struct {
	shared.BaseDomainEvent
	DonorID uuid.UUID `json:"donor_id"`
}

// EventType returns the event type name
func (e *ScheduleCancelledEvent) EventType() string {
	return "ScheduleCancelled"
}

// NewScheduleCancelledEvent creates a new ScheduleCancelledEvent
func NewScheduleCancelledEvent(s *Schedule) *ScheduleCancelledEvent {
	return &ScheduleCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ScheduleCancelled", "Schedule", s.ID),
		DonorID:         s.DonorID,
	}
}
