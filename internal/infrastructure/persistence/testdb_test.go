package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/compliance"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/recurring"
)

// setupTestDB opens an in-memory SQLite database with all tables migrated
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&campaign.Campaign{},
		&campaign.Contribution{},
		&payment.Transaction{},
		&payment.WebhookEvent{},
		&ledger.Entry{},
		&recurring.Schedule{},
		&compliance.Record{},
		&serialCounter{},
	)
	require.NoError(t, err)

	return db
}
