package scheduler

import (
	"context"
	"time"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"go.uber.org/zap"
)

// Job names
const (
	JobVestingSweep   = "vesting_sweep"
	JobReconcileStale = "reconcile_stale_payments"
	JobOutboxDelivery = "outbox_delivery"
	JobOutboxCleanup  = "outbox_cleanup"
)

// VestingSweeper runs due vesting ticks
type VestingSweeper interface {
	RunDueReleases(ctx context.Context, limit int) (appledger.SweepResult, error)
}

// PaymentReconciler re-polls payments whose callback never arrived
type PaymentReconciler interface {
	ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (appledger.ReconcileResult, error)
}

// OutboxWorker delivers and prunes outbox entries
type OutboxWorker interface {
	ProcessBatch(ctx context.Context) (int, error)
	Cleanup(ctx context.Context) (int64, error)
}

// VestingSweepJob releases due vesting ticks in batches of batchSize
func VestingSweepJob(sweeper VestingSweeper, interval time.Duration, batchSize int, logger *zap.Logger) Job {
	return Job{
		Name:     JobVestingSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			result, err := sweeper.RunDueReleases(ctx, batchSize)
			if err != nil {
				return err
			}
			if result.Checked > 0 {
				logger.Info("Vesting sweep finished",
					zap.Int("checked", result.Checked),
					zap.Int("released", result.Released),
					zap.Int("failed", result.Failed),
					zap.String("amount", result.Amount.String()),
				)
			}
			return nil
		},
	}
}

// ReconcileStaleJob refreshes open payments untouched for staleAfter
func ReconcileStaleJob(reconciler PaymentReconciler, interval, staleAfter time.Duration, batchSize int, logger *zap.Logger) Job {
	return Job{
		Name:     JobReconcileStale,
		Interval: interval,
		Run: func(ctx context.Context) error {
			result, err := reconciler.ReconcileStale(ctx, staleAfter, batchSize)
			if err != nil {
				return err
			}
			if result.Checked > 0 {
				logger.Info("Stale payment reconciliation finished",
					zap.Int("checked", result.Checked),
					zap.Int("changed", result.Changed),
					zap.Int("failed", result.Failed),
				)
			}
			return nil
		},
	}
}

// OutboxDeliveryJob publishes pending outbox entries
func OutboxDeliveryJob(worker OutboxWorker, interval time.Duration) Job {
	return Job{
		Name:     JobOutboxDelivery,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := worker.ProcessBatch(ctx)
			return err
		},
	}
}

// OutboxCleanupJob removes delivered entries past retention
func OutboxCleanupJob(worker OutboxWorker, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     JobOutboxCleanup,
		Interval: interval,
		Run: func(ctx context.Context) error {
			deleted, err := worker.Cleanup(ctx)
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("Outbox cleanup finished", zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}
