package persistence

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := Open(dialector, nil)
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestOpen_Options(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	assert.True(t, db.DB.Config.SkipDefaultTransaction)
	assert.True(t, db.DB.Config.TranslateError)
	assert.Equal(t, "UTC", db.DB.Config.NowFunc().Location().String())
}

func TestDatabase_Stats(t *testing.T) {
	t.Run("returns ConnectionStats from underlying DB", func(t *testing.T) {
		db, _, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		stats, err := db.Stats()
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, stats.OpenConnections, 0)
		assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
	})
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("ping with MonitorPingsOption enabled", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockDB.Close()

		// gorm pings once while opening
		mock.ExpectPing()
		dialector := postgres.New(postgres.Config{
			Conn:       mockDB,
			DriverName: "postgres",
		})
		gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
		require.NoError(t, err)

		db := &Database{DB: gormDB}
		mock.ExpectPing()

		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	_ = mockDB // db.Close closes it

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("successful transaction", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "settlements" SET "status"=\$1 WHERE id = \$2`).
			WithArgs("cancelled", "s-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Table("settlements").Where("id = ?", "s-1").Update("status", "cancelled").Error
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transaction rollback on error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(func(tx *gorm.DB) error {
			return assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
