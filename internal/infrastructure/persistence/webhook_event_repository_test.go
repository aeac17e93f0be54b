package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
)

func newTestWebhookEvent(t *testing.T, eventID string) *payment.WebhookEvent {
	t.Helper()
	event, err := payment.NewWebhookEvent(&payment.ProviderEvent{
		Provider:    payment.ProviderCard,
		EventID:     eventID,
		ProviderRef: "pi_123",
		Kind:        payment.EventSettled,
		Amount:      decimal.NewFromFloat(50.00),
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)
	return event
}

func TestWebhookEventRepository_SaveNewRejectsRedelivery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormWebhookEventRepository(db)
	ctx := context.Background()

	first := newTestWebhookEvent(t, "evt_001")
	require.NoError(t, repo.SaveNew(ctx, first))

	// the redelivered notification builds the same dedup key
	redelivered := newTestWebhookEvent(t, "evt_001")
	err := repo.SaveNew(ctx, redelivered)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	// a different event ID is a new notification
	assert.NoError(t, repo.SaveNew(ctx, newTestWebhookEvent(t, "evt_002")))
}

func TestWebhookEventRepository_FindByDedupKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormWebhookEventRepository(db)
	ctx := context.Background()

	event := newTestWebhookEvent(t, "evt_001")
	require.NoError(t, repo.SaveNew(ctx, event))

	found, err := repo.FindByDedupKey(ctx, payment.WebhookDedupKey(payment.ProviderCard, "evt_001"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, event.ID, found.ID)

	// the stored parsed payload round-trips
	parsed, err := found.Event()
	require.NoError(t, err)
	assert.Equal(t, payment.EventSettled, parsed.Kind)
	assert.Equal(t, "pi_123", parsed.ProviderRef)

	missing, err := repo.FindByDedupKey(ctx, payment.WebhookDedupKey(payment.ProviderCard, "evt_999"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWebhookEventRepository_UnprocessedLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormWebhookEventRepository(db)
	ctx := context.Background()

	pending := newTestWebhookEvent(t, "evt_001")
	require.NoError(t, repo.SaveNew(ctx, pending))
	done := newTestWebhookEvent(t, "evt_002")
	require.NoError(t, repo.SaveNew(ctx, done))
	require.NoError(t, repo.MarkProcessed(ctx, done.ID))

	unprocessed, err := repo.FindUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, pending.ID, unprocessed[0].ID)

	stored, err := repo.FindByDedupKey(ctx, done.DedupKey)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.NotNil(t, stored.ProcessedAt)
}
