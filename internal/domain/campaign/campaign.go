package campaign

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// CampaignState represents the campaign lifecycle
type CampaignState string

const (
	CampaignStateDraft  CampaignState = "DRAFT"
	CampaignStateActive CampaignState = "ACTIVE"
	CampaignStateClosed CampaignState = "CLOSED"
)

// IsValid returns true if the state is known
func (s CampaignState) IsValid() bool {
	switch s {
	case CampaignStateDraft, CampaignStateActive, CampaignStateClosed:
		return true
	}
	return false
}

// CampaignOutcome records how a closed campaign ended
type CampaignOutcome string

const (
	// CampaignOutcomeSucceeded means the goal was reached by the deadline
	CampaignOutcomeSucceeded CampaignOutcome = "SUCCEEDED"
	// CampaignOutcomeUnfunded means the deadline passed short of the goal
	CampaignOutcomeUnfunded CampaignOutcome = "UNFUNDED"
	// CampaignOutcomeCancelled means the creator withdrew the campaign
	CampaignOutcomeCancelled CampaignOutcome = "CANCELLED"
)

// Category classifies a campaign
type Category string

// Valid campaign categories
const (
	CategoryTech      Category = "tech"
	CategoryArt       Category = "art"
	CategoryMusic     Category = "music"
	CategoryGames     Category = "games"
	CategoryFilm      Category = "film"
	CategoryCommunity Category = "community"
	CategoryScience   Category = "science"
)

// IsValid returns true if the category is known
func (c Category) IsValid() bool {
	switch c {
	case CategoryTech, CategoryArt, CategoryMusic, CategoryGames,
		CategoryFilm, CategoryCommunity, CategoryScience:
		return true
	}
	return false
}

// Campaign is a fundraising campaign. The amount raised is NEVER stored here:
// it is always derived from the ledger entry log, so this aggregate carries
// only identity, goal, and lifecycle.
type Campaign struct {
	shared.BaseAggregateRoot

	Title       string   `gorm:"size:200;not null"`
	Creator     string   `gorm:"size:100;not null"`
	Category    Category `gorm:"size:20;not null;index"`
	Description string   `gorm:"type:text"`

	Goal     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency string          `gorm:"size:3;not null"`

	Deadline time.Time       `gorm:"not null;index"`
	State    CampaignState   `gorm:"size:10;not null;index"`
	Outcome  CampaignOutcome `gorm:"size:10"`
	ClosedAt *time.Time      `gorm:""`
}

// TableName returns the database table name
func (Campaign) TableName() string {
	return "campaigns"
}

// NewCampaign creates a campaign in the draft state
func NewCampaign(title, creator string, category Category, goal decimal.Decimal, currency string, deadline time.Time, description string) (*Campaign, error) {
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Campaign title cannot be empty")
	}
	if creator == "" {
		return nil, shared.NewDomainError("INVALID_CREATOR", "Campaign creator cannot be empty")
	}
	if !category.IsValid() {
		return nil, shared.NewDomainError("INVALID_CATEGORY", "Unknown campaign category")
	}
	if goal.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_GOAL", "Funding goal must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if !deadline.After(time.Now()) {
		return nil, shared.NewDomainError("INVALID_DEADLINE", "Deadline must be in the future")
	}

	return &Campaign{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Title:             title,
		Creator:           creator,
		Category:          category,
		Description:       description,
		Goal:              goal,
		Currency:          currency,
		Deadline:          deadline,
		State:             CampaignStateDraft,
	}, nil
}

// Activate opens the campaign for contributions
func (c *Campaign) Activate() error {
	if c.State != CampaignStateDraft {
		return shared.ErrInvalidState
	}
	c.State = CampaignStateActive
	c.UpdatedAt = time.Now()
	c.AddDomainEvent(NewCampaignActivatedEvent(c))
	return nil
}

// AcceptsContributions returns true while the campaign can take new pledges
func (c *Campaign) AcceptsContributions() bool {
	return c.State == CampaignStateActive && time.Now().Before(c.Deadline)
}

// Close ends the campaign with an explicit outcome
func (c *Campaign) Close(outcome CampaignOutcome) error {
	if c.State == CampaignStateClosed {
		return shared.ErrInvalidState
	}
	now := time.Now()
	c.State = CampaignStateClosed
	c.Outcome = outcome
	c.ClosedAt = &now
	c.UpdatedAt = now
	c.AddDomainEvent(NewCampaignClosedEvent(c))
	return nil
}

// EvaluateDeadline closes an expired active campaign with the outcome implied
// by the raised amount. Returns true when the campaign was closed.
func (c *Campaign) EvaluateDeadline(now time.Time, raised decimal.Decimal) (bool, error) {
	if c.State != CampaignStateActive || now.Before(c.Deadline) {
		return false, nil
	}
	outcome := CampaignOutcomeUnfunded
	if raised.GreaterThanOrEqual(c.Goal) {
		outcome = CampaignOutcomeSucceeded
	}
	if err := c.Close(outcome); err != nil {
		return false, err
	}
	return true, nil
}

// Progress returns raised/goal as a percentage capped at 100
func (c *Campaign) Progress(raised decimal.Decimal) decimal.Decimal {
	if c.Goal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	pct := raised.Div(c.Goal).Mul(decimal.NewFromInt(100))
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
