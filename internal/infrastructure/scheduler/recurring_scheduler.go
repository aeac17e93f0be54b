package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/infrastructure/config"
)

// ScheduleFirer fires every due recurrence schedule
type ScheduleFirer interface {
	FireDue(ctx context.Context, now time.Time) (int, error)
}

// DeadlineSweeper closes expired active campaigns
type DeadlineSweeper interface {
	SweepDeadlines(ctx context.Context, now time.Time, limit int) (int, error)
}

// RecurringScheduler drives the recurrence engine on a fixed tick. Firing is
// idempotent per schedule period, so overlapping or replayed ticks are safe;
// the scheduler only provides the heartbeat.
type RecurringScheduler struct {
	config  config.SchedulerConfig
	firer   ScheduleFirer
	sweeper DeadlineSweeper
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRunAt *time.Time
}

// NewRecurringScheduler creates a new recurring donation scheduler
func NewRecurringScheduler(cfg config.SchedulerConfig, firer ScheduleFirer, sweeper DeadlineSweeper, logger *zap.Logger) *RecurringScheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecurringScheduler{
		config:  cfg,
		firer:   firer,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start starts the tick loops
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.fireLoop(ctx)

	if s.sweeper != nil && s.config.SweepEnabled {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	}

	s.logger.Info("Recurring scheduler started",
		zap.Duration("tick_interval", s.config.TickInterval),
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Recurring scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerFire runs one fire pass immediately
func (s *RecurringScheduler) TriggerFire(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return 0, ErrSchedulerNotRunning
	}
	s.mu.Unlock()
	return s.fireDue(ctx, time.Now())
}

// GetLastRunAt returns when the last fire pass ran
func (s *RecurringScheduler) GetLastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}

// fireLoop fires due schedules on every tick
func (s *RecurringScheduler) fireLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.fireDue(ctx, now); err != nil {
				s.logger.Error("Schedule fire pass failed", zap.Error(err))
			}
		}
	}
}

// sweepLoop closes expired campaigns on a slower cadence
func (s *RecurringScheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			closed, err := s.sweeper.SweepDeadlines(ctx, now, s.config.BatchSize)
			if err != nil {
				s.logger.Error("Deadline sweep failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				s.logger.Info("Deadline sweep closed campaigns", zap.Int("closed", closed))
			}
		}
	}
}

func (s *RecurringScheduler) fireDue(ctx context.Context, now time.Time) (int, error) {
	fired, err := s.firer.FireDue(ctx, now)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastRunAt = &now
	s.mu.Unlock()

	if fired > 0 {
		s.logger.Info("Fired due schedules", zap.Int("fired", fired))
	}
	return fired, nil
}
