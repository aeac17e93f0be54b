package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransactionRepository defines the interface for transaction persistence
type TransactionRepository interface {
	// FindByID finds a transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// FindByProviderRef finds the transaction bound to a provider reference
	FindByProviderRef(ctx context.Context, provider ProviderID, providerRef string) (*Transaction, error)

	// FindByContribution finds all transactions for a contribution, newest first
	FindByContribution(ctx context.Context, contributionID uuid.UUID) ([]Transaction, error)

	// FindByIdempotencyKey finds the transaction created under an idempotency key
	FindByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// FindByCampaignAndState finds a campaign's transactions in a given state;
	// feeds the campaign-wide refund sweep
	FindByCampaignAndState(ctx context.Context, campaignID uuid.UUID, state TransactionState, limit int) ([]Transaction, error)

	// FindStuck finds non-terminal transactions whose last update is older than
	// the given cutoff; input to the reconciliation poller
	FindStuck(ctx context.Context, states []TransactionState, updatedBefore time.Time, limit int) ([]Transaction, error)

	// Save creates or updates a transaction
	Save(ctx context.Context, tx *Transaction) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, tx *Transaction) error
}

// WebhookEventRepository defines the interface for webhook dedup records
type WebhookEventRepository interface {
	// SaveNew persists the dedup record; returns shared.ErrAlreadyExists when
	// the dedup key was already recorded
	SaveNew(ctx context.Context, event *WebhookEvent) error

	// FindByDedupKey finds a dedup record by its key
	FindByDedupKey(ctx context.Context, key string) (*WebhookEvent, error)

	// FindUnprocessed finds persisted-but-unprocessed events for restart recovery
	FindUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)

	// MarkProcessed marks a dedup record as consumed by the state machine
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}
