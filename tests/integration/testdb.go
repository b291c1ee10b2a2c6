// Package integration runs the engine against real PostgreSQL and Redis
// instances started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/settlement/internal/infrastructure/migration"
	"github.com/erp/settlement/internal/infrastructure/persistence"
)

var (
	// Shared containers for all tests in the package
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string

	sharedRedis     testcontainers.Container
	sharedRedisMu   sync.Mutex
	sharedRedisAddr string
)

// TestDB represents a test database connection
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// skipIfShort skips container-backed tests under -short
func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// NewTestDB creates a fresh PostgreSQL container with the schema applied
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	ctx := context.Background()
	container, dsn := startPostgres(t, ctx, "settlement_test")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)
	return testDB
}

// NewSharedTestDB returns a connection to a package-wide container.
// Callers clean up with CleanTables since state survives between tests.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer == nil {
		container, dsn := startPostgres(t, context.Background(), "settlement_shared_test")
		_, sqlDB := connectToDatabase(t, dsn)
		runMigrations(t, sqlDB)
		_ = sqlDB.Close()

		sharedContainer = container
		sharedContainerDSN = dsn
	}

	db, sqlDB := connectToDatabase(t, sharedContainerDSN)
	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: sharedContainer,
		DSN:       sharedContainerDSN,
		t:         t,
	}
	t.Cleanup(func() {
		_ = testDB.SqlDB.Close()
	})
	return testDB
}

func startPostgres(t *testing.T, ctx context.Context, database string) (testcontainers.Container, string) {
	t.Helper()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(database),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")
	return container, dsn
}

// Close closes the connection and terminates a private container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil && tdb.Container != sharedContainer {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables truncates every engine table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			tdb.t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// Count returns the number of rows matching the condition
func (tdb *TestDB) Count(table, where string, args ...any) int64 {
	tdb.t.Helper()
	var n int64
	query := tdb.DB.Table(table)
	if where != "" {
		query = query.Where(where, args...)
	}
	require.NoError(tdb.t, query.Count(&n).Error)
	return n
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}

	db, err := persistence.Open(gormpostgres.Open(dsn), gormlogger.Default.LogMode(level))
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// enough connections for the concurrency tests to actually race
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the embedded migrations
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.New(sqlDB, "", nil)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// NewRedisClient returns a client on a package-wide Redis container.
// The database is flushed for every caller.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	skipIfShort(t)

	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	ctx := context.Background()
	if sharedRedis == nil {
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		require.NoError(t, err, "Failed to start Redis container")

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, "6379/tcp")
		require.NoError(t, err)

		sharedRedis = container
		sharedRedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
	}

	client := redis.NewClient(&redis.Options{Addr: sharedRedisAddr})
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// CleanupSharedContainers terminates the package-wide containers.
// Call it from TestMain after m.Run.
func CleanupSharedContainers() {
	ctx := context.Background()

	sharedContainerMu.Lock()
	if sharedContainer != nil {
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
	}
	sharedContainerMu.Unlock()

	sharedRedisMu.Lock()
	if sharedRedis != nil {
		_ = sharedRedis.Terminate(ctx)
		sharedRedis = nil
	}
	sharedRedisMu.Unlock()
}
