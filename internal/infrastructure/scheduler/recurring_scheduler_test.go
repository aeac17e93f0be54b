package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giveflow/backend/internal/infrastructure/config"
)

type countingFirer struct {
	calls atomic.Int64
	fired int
	err   error
}

func (f *countingFirer) FireDue(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	return f.fired, f.err
}

type countingSweeper struct {
	calls atomic.Int64
}

func (s *countingSweeper) SweepDeadlines(ctx context.Context, now time.Time, limit int) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestRecurringSchedulerFiresOnTick(t *testing.T) {
	firer := &countingFirer{fired: 2}
	s := NewRecurringScheduler(config.SchedulerConfig{
		TickInterval: 5 * time.Millisecond,
	}, firer, nil, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return firer.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.NotNil(t, s.GetLastRunAt())
}

func TestRecurringSchedulerSweepsOnSlowerCadence(t *testing.T) {
	firer := &countingFirer{}
	sweeper := &countingSweeper{}
	s := NewRecurringScheduler(config.SchedulerConfig{
		TickInterval:  5 * time.Millisecond,
		SweepEnabled:  true,
		SweepInterval: 10 * time.Millisecond,
	}, firer, sweeper, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecurringSchedulerTriggerRequiresRunning(t *testing.T) {
	s := NewRecurringScheduler(config.SchedulerConfig{}, &countingFirer{}, nil, zap.NewNop())

	_, err := s.TriggerFire(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestRecurringSchedulerTriggerFire(t *testing.T) {
	firer := &countingFirer{fired: 3}
	s := NewRecurringScheduler(config.SchedulerConfig{
		TickInterval: time.Hour,
	}, firer, nil, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	fired, err := s.TriggerFire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fired)
	assert.EqualValues(t, 1, firer.calls.Load())
}

func TestRecurringSchedulerStopIsIdempotent(t *testing.T) {
	s := NewRecurringScheduler(config.SchedulerConfig{
		TickInterval: time.Hour,
	}, &countingFirer{}, nil, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
