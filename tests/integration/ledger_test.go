//go:build integration

package integration

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/event"
	"github.com/mxi/presale/internal/infrastructure/migration"
	"github.com/mxi/presale/internal/infrastructure/persistence"
	"github.com/mxi/presale/migrations"
	"github.com/mxi/presale/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stubGateway hands out fixed invoices and never reaches the network
type stubGateway struct {
	mu     sync.Mutex
	issued int
}

func (g *stubGateway) CreateInvoice(_ context.Context, req ledger.InvoiceRequest) (*ledger.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return &ledger.Invoice{
		InvoiceID:        "inv-" + req.OrderID,
		GatewayPaymentID: "pay-" + req.OrderID,
		PaymentURL:       "https://pay.example/" + req.OrderID,
	}, nil
}

func (g *stubGateway) GetPaymentStatus(_ context.Context, id string) (*ledger.GatewayStatusSignal, error) {
	return &ledger.GatewayStatusSignal{GatewayPaymentID: id, Status: "waiting"}, nil
}

type ledgerFixture struct {
	db         *TestDB
	serializer *event.EventSerializer
	clock      *testutil.FixedClock
	accounts   *appledger.AccountService
	commission *appledger.CommissionService
	reconcile  *appledger.ReconciliationService
	vesting    *appledger.VestingService
	admin      ledger.AdminCapability
}

func newLedgerFixture(t *testing.T, db *TestDB) *ledgerFixture {
	t.Helper()
	serializer := event.NewLedgerEventSerializer()
	clock := testutil.NewFixedClock(time.Now())
	deps := appledger.Deps{
		Scope:  persistence.NewGormTransactionScope(db.DB, serializer),
		Config: appledger.DefaultConfig(),
		Logger: zap.NewNop(),
		Now:    clock.Now,
	}
	commission := appledger.NewCommissionService(deps)
	crediting := appledger.NewCreditingService(deps, commission)
	return &ledgerFixture{
		db:         db,
		serializer: serializer,
		clock:      clock,
		accounts:   appledger.NewAccountService(deps),
		commission: commission,
		reconcile:  appledger.NewReconciliationService(deps, &stubGateway{}, crediting),
		vesting:    appledger.NewVestingService(deps),
		admin:      ledger.GrantAdminCapability(uuid.New(), clock.Now()),
	}
}

func (f *ledgerFixture) register(t *testing.T, ctx context.Context, id uuid.UUID, referrer *uuid.UUID) {
	t.Helper()
	_, err := f.accounts.Register(ctx, appledger.RegisterCommand{AccountID: id, ReferrerID: referrer})
	require.NoError(t, err)
}

func TestLedger(t *testing.T) {
	db := NewTestDB(t)

	t.Run("concurrent success signals credit exactly once", func(t *testing.T) {
		db.CleanTables()
		f := newLedgerFixture(t, db)
		ctx := testutil.Context(t, time.Minute)

		l3, l2, l1, buyer := testutil.AccountID("l3"), testutil.AccountID("l2"), testutil.AccountID("l1"), testutil.AccountID("buyer")
		f.register(t, ctx, l3, nil)
		f.register(t, ctx, l2, &l3)
		f.register(t, ctx, l1, &l2)
		f.register(t, ctx, buyer, &l1)

		ref, err := f.reconcile.CreateInvoice(ctx, appledger.CreateInvoiceCommand{
			AccountID:  buyer,
			FiatAmount: decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		require.NotNil(t, ref.GatewayPaymentID)

		const callers = 8
		outcomes := make([]appledger.SignalOutcome, callers)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < callers; i++ {
			g.Go(func() error {
				res, err := f.reconcile.ApplyGatewaySignal(gctx, ledger.GatewayStatusSignal{
					GatewayPaymentID: *ref.GatewayPaymentID,
					OrderID:          ref.OrderID,
					Status:           "finished",
				})
				if err != nil {
					return err
				}
				outcomes[i] = res.Outcome
				return nil
			})
		}
		require.NoError(t, g.Wait())

		credited := 0
		for _, o := range outcomes {
			if o == appledger.SignalCredited {
				credited++
			} else {
				assert.Equal(t, appledger.SignalAlreadyCredited, o)
			}
		}
		assert.Equal(t, 1, credited)

		got, err := f.accounts.GetAccount(ctx, buyer)
		require.NoError(t, err)
		assert.Equal(t, "250", got.PurchasedBalance.String())

		// 5/2/1 percent of 250 up the chain
		for id, want := range map[uuid.UUID]string{l1: "12.5", l2: "5", l3: "2.5"} {
			acc, err := f.accounts.GetAccount(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, acc.CommissionTotal.String())
			assert.Equal(t, want, acc.CommissionAvailable.String())
		}

		page, err := f.commission.ListCommissions(ctx, l1, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("commission redistribution is a no-op", func(t *testing.T) {
		db.CleanTables()
		f := newLedgerFixture(t, db)
		ctx := testutil.Context(t, time.Minute)

		referrer, buyer := testutil.AccountID("referrer"), testutil.AccountID("buyer")
		f.register(t, ctx, referrer, nil)
		f.register(t, ctx, buyer, &referrer)

		contribution := ledger.Contribution{
			ID:        uuid.New(),
			AccountID: buyer,
			Amount:    decimal.NewFromInt(1000),
			Scheme:    ledger.SchemeContribution,
		}
		first, err := f.commission.Distribute(ctx, contribution)
		require.NoError(t, err)
		require.Len(t, first, 1)

		again, err := f.commission.Distribute(ctx, contribution)
		require.NoError(t, err)
		assert.Empty(t, again)

		acc, err := f.accounts.GetAccount(ctx, referrer)
		require.NoError(t, err)
		assert.Equal(t, "50", acc.CommissionTotal.String())
	})

	t.Run("vesting sweep releases one tick per interval", func(t *testing.T) {
		db.CleanTables()
		f := newLedgerFixture(t, db)
		ctx := testutil.Context(t, time.Minute)

		holder := testutil.AccountID("holder")
		f.register(t, ctx, holder, nil)
		_, err := f.vesting.Fund(ctx, f.admin, holder, decimal.NewFromInt(1000))
		require.NoError(t, err)

		res, err := f.vesting.RunDueReleases(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Released)

		f.clock.Advance(10*24*time.Hour + time.Minute)
		res, err = f.vesting.RunDueReleases(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Released)
		assert.Equal(t, "100", res.Amount.String())

		res, err = f.vesting.RunDueReleases(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Released)

		v, err := f.vesting.Get(ctx, holder)
		require.NoError(t, err)
		assert.Equal(t, 1, v.TicksCompleted)
		assert.Equal(t, "100", v.Withdrawable.String())
	})

	t.Run("outbox delivers committed events", func(t *testing.T) {
		db.CleanTables()
		f := newLedgerFixture(t, db)
		ctx := testutil.Context(t, time.Minute)

		f.register(t, ctx, testutil.AccountID("a"), nil)
		f.register(t, ctx, testutil.AccountID("b"), nil)

		bus := event.NewInMemoryEventBus(zap.NewNop())
		recorder := testutil.NewRecordingHandler(ledger.EventTypeAccountRegistered)
		bus.Subscribe(recorder, recorder.EventTypes()...)

		processor := event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), bus, f.serializer,
			event.DefaultOutboxProcessorConfig(), zap.NewNop())
		delivered, err := processor.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)

		testutil.RequireEventually(t, func() bool {
			return recorder.Count(ledger.EventTypeAccountRegistered) == 2
		}, 5*time.Second, 10*time.Millisecond)

		delivered, err = processor.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, delivered)
	})
}

func TestMigrationsRoundTrip(t *testing.T) {
	db := NewTestDB(t)

	sqlDB, err := sql.Open("postgres", db.DSN)
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migration.Source{FS: migrations.FS}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	before, err := m.Status()
	require.NoError(t, err)
	require.NotZero(t, before.Version)

	require.NoError(t, m.Down())
	st, err := m.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Version)

	require.NoError(t, m.Up())
	after, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
