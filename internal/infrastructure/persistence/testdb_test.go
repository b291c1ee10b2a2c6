package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// setupTestDB opens a private in-memory SQLite database with every model migrated.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), nil)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

var (
	marchStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	aprilStart = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

func mustPeriod(t *testing.T, start, end time.Time) settlement.Period {
	t.Helper()
	p, err := settlement.NewPeriod(start, end)
	require.NoError(t, err)
	return p
}

func newTestSettlement(t *testing.T, partnerID uuid.UUID, period settlement.Period) *settlement.Settlement {
	t.Helper()
	s, err := settlement.NewSettlement(partnerID, period, settlement.Statement{
		TotalGross:       decimal.RequireFromString("200.00"),
		TotalPlatformFee: decimal.RequireFromString("10.00"),
		TotalPartnerNet:  decimal.RequireFromString("190.00"),
		TransactionCount: 2,
	}, period.End)
	require.NoError(t, err)
	return s
}
