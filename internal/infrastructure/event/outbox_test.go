package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&OutboxRecord{}))
	return db
}

func recordEvents(t *testing.T, db *gorm.DB, events ...shared.DomainEvent) {
	t.Helper()
	err := db.Transaction(func(tx *gorm.DB) error {
		return NewOutboxRecorder(tx, NewLedgerEventSerializer()).Record(context.Background(), events...)
	})
	require.NoError(t, err)
}

func TestOutboxRecorder_RollsBackWithTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewGormOutboxRepository(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, NewOutboxRecorder(tx, NewLedgerEventSerializer()).Record(context.Background(), balanceEvent()))
		return errors.New("abort")
	})
	require.Error(t, err)

	pending, err := repo.FindPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGormOutboxRepository_ClaimAndCount(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()
	recordEvents(t, db, balanceEvent(), balanceEvent())

	pending, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	claimed, err := repo.MarkProcessing(ctx, []uuid.UUID{pending[0].ID})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)

	again, err := repo.MarkProcessing(ctx, []uuid.UUID{pending[0].ID})
	require.NoError(t, err)
	assert.Empty(t, again, "a processing entry cannot be claimed twice")

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusPending])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusProcessing])
}

func TestOutboxProcessor_DeliversAndMarksSent(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewGormOutboxRepository(db)
	bus := NewInMemoryEventBus(nil)
	h := &recordingHandler{}
	bus.Subscribe(h)
	recordEvents(t, db, balanceEvent())

	p := NewOutboxProcessor(repo, bus, NewLedgerEventSerializer(), DefaultOutboxProcessorConfig(), nil)
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.seen, 1)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxProcessor_FailureSchedulesRetryThenDeadLetters(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewGormOutboxRepository(db)
	bus := NewInMemoryEventBus(nil)
	bus.Subscribe(&recordingHandler{err: errors.New("downstream")})
	recordEvents(t, db, balanceEvent())

	clock := time.Now().UTC()
	p := NewOutboxProcessor(repo, bus, NewLedgerEventSerializer(), DefaultOutboxProcessorConfig(), nil)
	p.now = func() time.Time { return clock }

	for i := 0; i < shared.DefaultMaxRetries; i++ {
		n, err := p.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		clock = clock.Add(time.Hour)
	}

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusDead])

	var record OutboxRecord
	require.NoError(t, db.First(&record).Error)
	require.NoError(t, repo.ResetDead(context.Background(), record.ID))
	pending, err := repo.FindPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewGormOutboxRepository(db)
	recordEvents(t, db, balanceEvent())

	p := NewOutboxProcessor(repo, NewInMemoryEventBus(nil), NewLedgerEventSerializer(), OutboxProcessorConfig{CleanupRetention: time.Hour}, nil)
	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	deleted, err := p.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
