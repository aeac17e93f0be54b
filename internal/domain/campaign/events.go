package campaign

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// CampaignActivatedEvent is raised when a campaign opens for contributions
type CampaignActivatedEvent struct {
	shared.BaseDomainEvent
	Title    string          `json:"title"`
	Category Category        `json:"category"`
	Goal     decimal.Decimal `json:"goal"`
	Currency string          `json:"currency"`
}

// EventType returns the event type name
func (e *CampaignActivatedEvent) EventType() string {
	return "CampaignActivated"
}

// NewCampaignActivatedEvent creates a new CampaignActivatedEvent
func NewCampaignActivatedEvent(c *Campaign) *CampaignActivatedEvent {
	return &CampaignActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CampaignActivated", "Campaign", c.ID),
		Title:           c.Title,
		Category:        c.Category,
		Goal:            c.Goal,
		Currency:        c.Currency,
	}
}

// CampaignClosedEvent is raised when a campaign closes
type CampaignClosedEvent struct {
	shared.BaseDomainEvent
	Title   string          `json:"title"`
	Outcome CampaignOutcome `json:"outcome"`
	Goal    decimal.Decimal `json:"goal"`
}

// EventType returns the event type name
func (e *CampaignClosedEvent) EventType() string {
	return "CampaignClosed"
}

// NewCampaignClosedEvent creates a new CampaignClosedEvent
func NewCampaignClosedEvent(c *Campaign) *CampaignClosedEvent {
	return &CampaignClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CampaignClosed", "Campaign", c.ID),
		Title:           c.Title,
		Outcome:         c.Outcome,
		Goal:            c.Goal,
	}
}

// ContributionCreatedEvent is raised when a donor pledges
type ContributionCreatedEvent struct {
	shared.BaseDomainEvent
	CampaignID uuid.UUID       `json:"campaign_id"`
	DonorID    uuid.UUID       `json:"donor_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Tier       RewardTier      `json:"tier"`
}

// EventType returns the event type name
func (e *ContributionCreatedEvent) EventType() string {
	return "ContributionCreated"
}

// NewContributionCreatedEvent creates a new ContributionCreatedEvent
func NewContributionCreatedEvent(c *Contribution) *ContributionCreatedEvent {
	return &ContributionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ContributionCreated", "Contribution", c.ID),
		CampaignID:      c.CampaignID,
		DonorID:         c.DonorID,
		Amount:          c.Amount,
		Currency:        c.Currency,
		Tier:            c.Tier,
	}
}

// ContributionOutcomeEvent is the fire-and-forget notification consumed by the
// donor-facing collaborator after a terminal transition. Delivery failures
// never affect ledger correctness.
type ContributionOutcomeEvent struct {
	shared.BaseDomainEvent
	ContributionID uuid.UUID         `json:"contribution_id"`
	Outcome        ContributionState `json:"outcome"`
}

// EventType returns the event type name
func (e *ContributionOutcomeEvent) EventType() string {
	return "ContributionOutcome"
}

// NewContributionOutcomeEvent creates a new ContributionOutcomeEvent
func NewContributionOutcomeEvent(contributionID uuid.UUID, outcome ContributionState) *ContributionOutcomeEvent {
	return &ContributionOutcomeEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ContributionOutcome", "Contribution", contributionID),
		ContributionID:  contributionID,
		Outcome:         outcome,
	}
}
