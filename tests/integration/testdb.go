//go:build integration

// Package integration runs the ledger services against a real PostgreSQL
// started with testcontainers. Run with: go test -tags integration ./tests/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/mxi/presale/internal/infrastructure/migration"
	"github.com/mxi/presale/internal/infrastructure/persistence"
	"github.com/mxi/presale/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	*persistence.Database
	DSN string
	t   *testing.T
}

// NewTestDB starts PostgreSQL, applies the embedded migrations and opens a
// GORM handle. The container is terminated when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("mxi_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	applyMigrations(t, dsn)

	gl := gormlogger.Default.LogMode(gormlogger.Silent)
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gl = gormlogger.Default.LogMode(gormlogger.Info)
	}
	db, err := persistence.Open(gormpostgres.Open(dsn), persistence.Options{Logger: gl})
	require.NoError(t, err, "Failed to connect to database")
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{Database: db, DSN: dsn, t: t}
}

func applyMigrations(t *testing.T, dsn string) {
	t.Helper()
	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migration.Source{FS: migrations.FS}, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Up(), "Failed to apply migrations")
}

// CleanTables truncates every ledger table and restores the seeded settings
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'ledger_schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to list tables")

	for _, table := range tables {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error)
	}
	require.NoError(tdb.t, tdb.DB.Exec(
		`INSERT INTO ledger_settings (key, value) VALUES ('launched', 'false') ON CONFLICT (key) DO NOTHING`).Error)
}
