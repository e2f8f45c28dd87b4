package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/event"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupLedgerDB opens an in-memory SQLite database with the ledger schema
// and the outbox table.
func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := Open(sqlite.Open(":memory:"), Options{})
	require.NoError(t, err)
	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.DB.AutoMigrate(append(models.All(), &event.OutboxRecord{})...))
	return database.DB
}

// newMockGormDB wraps a sqlmock connection in the postgres dialector
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T) *ledger.Account {
	t.Helper()
	a, err := ledger.NewAccount(uuid.New(), nil, testNow)
	require.NoError(t, err)
	return a
}

func newTestPayment(t *testing.T, owner uuid.UUID, orderID string) *ledger.PaymentReference {
	t.Helper()
	ref, err := ledger.NewPaymentReference(owner, orderID,
		decimal.NewFromInt(100), "usd", "usdttrc20", decimal.NewFromInt(250))
	require.NoError(t, err)
	return ref
}
