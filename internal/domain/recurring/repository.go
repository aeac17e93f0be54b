package recurring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/giveflow/backend/internal/domain/shared"
)

// ScheduleRepository defines the interface for schedule persistence
type ScheduleRepository interface {
	// FindByID finds a schedule by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// FindByDonor finds a donor's schedules
	FindByDonor(ctx context.Context, donorID uuid.UUID, filter shared.Filter) ([]Schedule, error)

	// FindDue finds active schedules whose next fire time has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error)

	// Save creates or updates a schedule
	Save(ctx context.Context, s *Schedule) error
}
