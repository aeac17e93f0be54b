package campaign

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// ContributionState summarizes the outcome of a contribution. The detailed
// payment lifecycle lives on the Transaction; this is the donor-facing view.
type ContributionState string

const (
	ContributionStatePending  ContributionState = "PENDING"
	ContributionStateSettled  ContributionState = "SETTLED"
	ContributionStateFailed   ContributionState = "FAILED"
	ContributionStateRefunded ContributionState = "REFUNDED"
)

// IsTerminal returns true once the contribution has a final outcome
func (s ContributionState) IsTerminal() bool {
	return s == ContributionStateSettled || s == ContributionStateFailed || s == ContributionStateRefunded
}

// RewardTier names the acknowledgment tier a pledge qualifies for
type RewardTier string

const (
	TierSupporter RewardTier = "supporter"
	TierBacker    RewardTier = "backer"
	TierChampion  RewardTier = "champion"
	TierFounder   RewardTier = "founder"
)

// tierMinimums maps each tier to its minimum pledge amount
var tierMinimums = map[RewardTier]decimal.Decimal{
	TierSupporter: decimal.NewFromInt(5),
	TierBacker:    decimal.NewFromInt(25),
	TierChampion:  decimal.NewFromInt(100),
	TierFounder:   decimal.NewFromInt(500),
}

// IsValid returns true if the tier is known
func (t RewardTier) IsValid() bool {
	_, ok := tierMinimums[t]
	return ok
}

// Minimum returns the minimum pledge amount for the tier
func (t RewardTier) Minimum() decimal.Decimal {
	return tierMinimums[t]
}

// Contribution is one donor's pledge attempt toward a campaign. Immutable
// once created except for its state.
type Contribution struct {
	shared.BaseAggregateRoot

	CampaignID uuid.UUID `gorm:"type:uuid;not null;index"`
	DonorID    uuid.UUID `gorm:"type:uuid;not null;index"`

	Amount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency string          `gorm:"size:3;not null"`
	Tier     RewardTier      `gorm:"size:20;not null"`

	// MethodScheme and MethodToken describe the payment instrument
	MethodScheme string `gorm:"size:30;not null"`
	MethodToken  string `gorm:"size:128;not null"`

	// ScheduleID links a contribution originated by a recurrence schedule
	ScheduleID *uuid.UUID `gorm:"type:uuid;index:idx_contrib_schedule_period,unique"`
	// PeriodKey identifies the scheduled period that produced this
	// contribution; unique per schedule so a re-run cannot double-fire
	PeriodKey string `gorm:"size:40;index:idx_contrib_schedule_period,unique"`

	State ContributionState `gorm:"size:10;not null;index"`
}

// TableName returns the database table name
func (Contribution) TableName() string {
	return "contributions"
}

// NewContribution creates a pending contribution
func NewContribution(
	campaignID, donorID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	tier RewardTier,
	methodScheme, methodToken string,
) (*Contribution, error) {
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign ID cannot be empty")
	}
	if donorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DONOR", "Donor ID cannot be empty")
	}
	if !tier.IsValid() {
		return nil, shared.NewDomainError("INVALID_TIER", "Unknown reward tier")
	}
	if amount.LessThan(tier.Minimum()) {
		return nil, shared.NewDomainError("AMOUNT_BELOW_TIER", "Amount is below the minimum for the reward tier")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if methodToken == "" {
		return nil, shared.NewDomainError("INVALID_METHOD", "Payment method token cannot be empty")
	}

	c := &Contribution{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CampaignID:        campaignID,
		DonorID:           donorID,
		Amount:            amount,
		Currency:          currency,
		Tier:              tier,
		MethodScheme:      methodScheme,
		MethodToken:       methodToken,
		State:             ContributionStatePending,
	}
	c.AddDomainEvent(NewContributionCreatedEvent(c))
	return c, nil
}

// NewScheduledContribution creates a contribution originated by a recurrence
// schedule for a specific period
func NewScheduledContribution(
	campaignID, donorID, scheduleID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	tier RewardTier,
	methodScheme, methodToken string,
	periodKey string,
) (*Contribution, error) {
	if scheduleID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SCHEDULE", "Schedule ID cannot be empty")
	}
	if periodKey == "" {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period key cannot be empty")
	}
	c, err := NewContribution(campaignID, donorID, amount, currency, tier, methodScheme, methodToken)
	if err != nil {
		return nil, err
	}
	c.ScheduleID = &scheduleID
	c.PeriodKey = periodKey
	return c, nil
}

// MarkOutcome records the contribution's final state; once terminal it never
// changes except settled → refunded
func (c *Contribution) MarkOutcome(state ContributionState) error {
	if !state.IsTerminal() {
		return shared.ErrInvalidState
	}
	if c.State.IsTerminal() {
		if c.State == ContributionStateSettled && state == ContributionStateRefunded {
			c.State = state
			c.UpdatedAt = time.Now()
			return nil
		}
		return shared.ErrInvalidState
	}
	c.State = state
	c.UpdatedAt = time.Now()
	return nil
}
