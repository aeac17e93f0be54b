package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/giveflow/backend/internal/domain/shared"
)

// WebhookEvent is the durable dedup record for one inbound provider
// notification. Persisting it and the parsed event in the same transaction is
// what makes ingestion crash-safe: an event that survived the dedup write is
// either processed or picked up by the restart re-scan.
type WebhookEvent struct {
	shared.BaseEntity

	Provider        ProviderID `gorm:"size:20;not null"`
	ProviderEventID string     `gorm:"size:128;not null"`
	// DedupKey is (provider, provider event id); unique so redelivery collides
	DedupKey string `gorm:"size:160;not null;uniqueIndex"`

	// Parsed holds the verified ProviderEvent as JSON for replay after a crash
	Parsed []byte `gorm:"type:jsonb"`

	Processed   bool       `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time `gorm:""`
}

// TableName returns the database table name
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// WebhookDedupKey builds the dedup key for a provider notification
func WebhookDedupKey(provider ProviderID, providerEventID string) string {
	return fmt.Sprintf("%s:%s", provider, providerEventID)
}

// NewWebhookEvent creates a dedup record for a verified provider event
func NewWebhookEvent(event *ProviderEvent) (*WebhookEvent, error) {
	if !event.Provider.IsValid() {
		return nil, shared.NewDomainError("INVALID_PROVIDER", "Unknown payment provider")
	}
	if event.EventID == "" {
		return nil, shared.NewDomainError("INVALID_EVENT_ID", "Provider event ID cannot be empty")
	}

	parsed, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal provider event: %w", err)
	}

	return &WebhookEvent{
		BaseEntity:      shared.NewBaseEntity(),
		Provider:        event.Provider,
		ProviderEventID: event.EventID,
		DedupKey:        WebhookDedupKey(event.Provider, event.EventID),
		Parsed:          parsed,
	}, nil
}

// Event unmarshals the stored provider event
func (w *WebhookEvent) Event() (*ProviderEvent, error) {
	var event ProviderEvent
	if err := json.Unmarshal(w.Parsed, &event); err != nil {
		return nil, fmt.Errorf("unmarshal provider event: %w", err)
	}
	return &event, nil
}

// MarkProcessed records that the state machine consumed this event
func (w *WebhookEvent) MarkProcessed() {
	now := time.Now()
	w.Processed = true
	w.ProcessedAt = &now
	w.UpdatedAt = now
}
