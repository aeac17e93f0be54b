package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/application/donation"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/recurring"
	"github.com/giveflow/backend/internal/domain/shared"
)

// Submitter pushes a contribution intent into the payment pipeline
type Submitter interface {
	Submit(ctx context.Context, req donation.SubmitRequest) (*donation.SubmitResult, error)
}

// SchedulerService fires due recurrence schedules. Each fire is idempotent per
// (schedule, period): the period key is stamped on the produced contribution,
// so a re-run for an already-fired period finds it and skips.
type SchedulerService struct {
	schedules    recurring.ScheduleRepository
	contribRepo  campaign.ContributionRepository
	campaignRepo campaign.CampaignRepository
	submitter    Submitter
	publisher    shared.EventPublisher
	batchSize    int
	logger       *zap.Logger
}

// SchedulerServiceConfig holds dependencies for the scheduler service
type SchedulerServiceConfig struct {
	ScheduleRepo     recurring.ScheduleRepository
	ContributionRepo campaign.ContributionRepository
	CampaignRepo     campaign.CampaignRepository
	Submitter        Submitter
	EventPublisher   shared.EventPublisher
	BatchSize        int
	Logger           *zap.Logger
}

// NewSchedulerService creates a new SchedulerService
func NewSchedulerService(config SchedulerServiceConfig) *SchedulerService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := config.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &SchedulerService{
		schedules:    config.ScheduleRepo,
		contribRepo:  config.ContributionRepo,
		campaignRepo: config.CampaignRepo,
		submitter:    config.Submitter,
		publisher:    config.EventPublisher,
		batchSize:    batch,
		logger:       logger,
	}
}

// FireDue fires every active schedule past its next fire time. The fire time
// advances by one interval regardless of outcome; a failed charge never blocks
// future periods. Returns how many schedules produced a new contribution.
func (s *SchedulerService) FireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.schedules.FindDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find due schedules: %w", err)
	}

	fired := 0
	for i := range due {
		schedule := &due[i]
		if s.fireOne(ctx, schedule, now) {
			fired++
		}
	}
	return fired, nil
}

// fireOne processes a single due schedule; returns true when a new
// contribution was produced
func (s *SchedulerService) fireOne(ctx context.Context, schedule *recurring.Schedule, now time.Time) bool {
	// the period belongs to the scheduled slot, not the wall clock, so a
	// delayed run still consumes the right period
	periodKey := schedule.PeriodKeyFor(schedule.NextFireTime)

	existing, err := s.contribRepo.FindBySchedulePeriod(ctx, schedule.ID, periodKey)
	if err != nil {
		s.logger.Error("Failed to check fired period",
			zap.String("schedule_id", schedule.ID.String()),
			zap.Error(err))
		return false
	}
	if existing != nil {
		// crash-restart replay: the period already fired, just move on
		s.logger.Info("Period already fired, advancing schedule",
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("period", periodKey))
		schedule.RecordFireSucceeded(now)
		s.save(ctx, schedule)
		return false
	}

	scheduleID := schedule.ID
	_, err = s.submitter.Submit(ctx, donation.SubmitRequest{
		CampaignID:   schedule.CampaignID,
		DonorID:      schedule.DonorID,
		Amount:       schedule.Amount,
		Currency:     schedule.Currency,
		Tier:         tierFor(schedule.Amount),
		Provider:     providerFor(schedule.MethodScheme),
		MethodScheme: schedule.MethodScheme,
		MethodToken:  schedule.MethodToken,
		ScheduleID:   &scheduleID,
		PeriodKey:    periodKey,
	})
	if err != nil {
		s.logger.Warn("Scheduled fire failed",
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("period", periodKey),
			zap.Error(err))
		schedule.RecordFireFailed(now)
		s.save(ctx, schedule)
		return false
	}

	s.logger.Info("Schedule fired",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("period", periodKey),
		zap.String("amount", schedule.Amount.String()))
	schedule.RecordFireSucceeded(now)
	s.save(ctx, schedule)
	return true
}

func (s *SchedulerService) save(ctx context.Context, schedule *recurring.Schedule) {
	if err := s.schedules.Save(ctx, schedule); err != nil {
		s.logger.Error("Failed to save schedule",
			zap.String("schedule_id", schedule.ID.String()),
			zap.Error(err))
		return
	}
	if s.publisher != nil {
		events := schedule.GetDomainEvents()
		if len(events) > 0 {
			if err := s.publisher.Publish(ctx, events...); err != nil {
				s.logger.Warn("Failed to publish schedule events", zap.Error(err))
			}
			schedule.ClearDomainEvents()
		}
	}
}

// tierFor picks the highest reward tier the amount qualifies for
func tierFor(amount decimal.Decimal) campaign.RewardTier {
	switch {
	case amount.GreaterThanOrEqual(campaign.TierFounder.Minimum()):
		return campaign.TierFounder
	case amount.GreaterThanOrEqual(campaign.TierChampion.Minimum()):
		return campaign.TierChampion
	case amount.GreaterThanOrEqual(campaign.TierBacker.Minimum()):
		return campaign.TierBacker
	default:
		return campaign.TierSupporter
	}
}

// providerFor maps an instrument scheme to its payment rail
func providerFor(scheme string) payment.ProviderID {
	switch scheme {
	case "sepa_debit", "ach", "wire":
		return payment.ProviderBank
	case "btc", "eth", "usdc":
		return payment.ProviderCrypto
	default:
		return payment.ProviderCard
	}
}

// CreateScheduleRequest describes a new recurrence schedule
type CreateScheduleRequest struct {
	DonorID      uuid.UUID
	CampaignID   uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	MethodScheme string
	MethodToken  string
	Interval     recurring.Interval
	Start        time.Time
}

// CreateSchedule validates the target campaign and creates an active schedule
func (s *SchedulerService) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*recurring.Schedule, error) {
	c, err := s.campaignRepo.FindByID(ctx, req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, shared.ErrNotFound
	}
	if !c.AcceptsContributions() {
		return nil, donation.ErrCampaignNotAccepting
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now()
	}
	schedule, err := recurring.NewSchedule(req.DonorID, req.CampaignID, req.Amount, req.Currency,
		req.MethodScheme, req.MethodToken, req.Interval, start)
	if err != nil {
		return nil, err
	}
	s.save(ctx, schedule)
	return schedule, nil
}

// GetSchedule returns a schedule by ID
func (s *SchedulerService) GetSchedule(ctx context.Context, id uuid.UUID) (*recurring.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, shared.ErrNotFound
	}
	return schedule, nil
}

// ListByDonor returns a donor's schedules
func (s *SchedulerService) ListByDonor(ctx context.Context, donorID uuid.UUID, filter shared.Filter) ([]recurring.Schedule, error) {
	return s.schedules.FindByDonor(ctx, donorID, filter)
}

// PauseSchedule stops a schedule from firing
func (s *SchedulerService) PauseSchedule(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, func(schedule *recurring.Schedule) error {
		return schedule.Pause()
	})
}

// ResumeSchedule reactivates a paused or suspended schedule
func (s *SchedulerService) ResumeSchedule(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, func(schedule *recurring.Schedule) error {
		return schedule.Resume(time.Now())
	})
}

// CancelSchedule permanently ends a schedule
func (s *SchedulerService) CancelSchedule(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, func(schedule *recurring.Schedule) error {
		return schedule.Cancel()
	})
}

func (s *SchedulerService) mutate(ctx context.Context, id uuid.UUID, fn func(*recurring.Schedule) error) error {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return shared.ErrNotFound
	}
	if err := fn(schedule); err != nil {
		return err
	}
	s.save(ctx, schedule)
	return nil
}
