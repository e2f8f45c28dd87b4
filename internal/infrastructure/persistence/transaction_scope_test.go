package persistence

import (
	"context"
	"errors"
	"testing"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_CommitsAggregateAndOutbox(t *testing.T) {
	db := setupLedgerDB(t)
	scope := NewGormTransactionScope(db, event.NewLedgerEventSerializer())
	ctx := context.Background()

	acct := newTestAccount(t)
	err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		if err := repos.Accounts().Create(ctx, acct); err != nil {
			return err
		}
		return repos.Events().Record(ctx, acct.GetDomainEvents()...)
	})
	require.NoError(t, err)

	exists, err := NewGormAccountRepository(db).ExistsByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	pending, err := event.NewGormOutboxRepository(db).FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ledger.EventTypeAccountRegistered, pending[0].EventType)
}

func TestGormTransactionScope_RollsBackOnError(t *testing.T) {
	db := setupLedgerDB(t)
	scope := NewGormTransactionScope(db, event.NewLedgerEventSerializer())
	ctx := context.Background()
	boom := errors.New("boom")

	acct := newTestAccount(t)
	err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		require.NoError(t, repos.Accounts().Create(ctx, acct))
		require.NoError(t, repos.Events().Record(ctx, acct.GetDomainEvents()...))
		ref := newTestPayment(t, acct.ID, "MXI-ROLLBACK-1")
		require.NoError(t, repos.Payments().Create(ctx, ref))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewGormAccountRepository(db).FindByID(ctx, acct.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = NewGormPaymentReferenceRepository(db).FindByOrderID(ctx, "MXI-ROLLBACK-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	pending, err := event.NewGormOutboxRepository(db).FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLedgerSnapshots(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()
	payments := NewGormPaymentReferenceRepository(db)
	owner := newTestAccount(t).ID

	for _, id := range []string{"SNAP-0001", "SNAP-0002", "SNAP-0003"} {
		require.NoError(t, payments.Create(ctx, newTestPayment(t, owner, id)))
	}
	ref, err := payments.FindByOrderID(ctx, "SNAP-0003")
	require.NoError(t, err)
	_, err = ref.TransitionTo(ledger.PaymentStatusExpired, "test")
	require.NoError(t, err)
	require.NoError(t, payments.Save(ctx, ref, ledger.PaymentStatusPending))

	snapshots := NewLedgerSnapshots(db)
	counts, err := snapshots.CountPaymentsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])
	assert.Equal(t, int64(1), counts["expired"])

	open, err := snapshots.CountOpenVerifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, open)

	due, err := snapshots.CountDueVestingSchedules(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, due)
}
