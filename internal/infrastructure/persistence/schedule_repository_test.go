package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/recurring"
	"github.com/giveflow/backend/internal/domain/shared"
)

func newTestSchedule(t *testing.T, donorID uuid.UUID, fireAt time.Time) *recurring.Schedule {
	t.Helper()
	s, err := recurring.NewSchedule(donorID, uuid.New(), decimal.NewFromInt(25), "USD",
		"visa", "tok_recurring", recurring.IntervalMonthly, fireAt)
	require.NoError(t, err)
	s.ClearDomainEvents()
	return s
}

func TestScheduleRepository_FindDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormScheduleRepository(db)
	ctx := context.Background()
	now := time.Now()

	due := newTestSchedule(t, uuid.New(), now.Add(-time.Hour))
	require.NoError(t, repo.Save(ctx, due))

	future := newTestSchedule(t, uuid.New(), now.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, future))

	paused := newTestSchedule(t, uuid.New(), now.Add(-time.Hour))
	require.NoError(t, paused.Pause())
	require.NoError(t, repo.Save(ctx, paused))

	found, err := repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestScheduleRepository_SaveRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormScheduleRepository(db)
	ctx := context.Background()

	s := newTestSchedule(t, uuid.New(), time.Now().Add(time.Hour))
	require.NoError(t, repo.Save(ctx, s))

	found, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, recurring.ScheduleStateActive, found.State)
	assert.Equal(t, recurring.IntervalMonthly, found.Interval)
	assert.True(t, found.Amount.Equal(decimal.NewFromInt(25)))

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScheduleRepository_FindByDonor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormScheduleRepository(db)
	ctx := context.Background()

	donorID := uuid.New()
	require.NoError(t, repo.Save(ctx, newTestSchedule(t, donorID, time.Now())))
	require.NoError(t, repo.Save(ctx, newTestSchedule(t, donorID, time.Now())))
	require.NoError(t, repo.Save(ctx, newTestSchedule(t, uuid.New(), time.Now())))

	schedules, err := repo.FindByDonor(ctx, donorID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Len(t, schedules, 2)
}
