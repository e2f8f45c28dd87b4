// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics records the presale ledger's business metrics: credits,
// gateway signals, commission, yield claims and vesting releases, plus
// periodically collected backlog gauges.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	creditTotal         *Counter
	creditFailureTotal  *Counter
	signalTotal         *Counter
	commissionTotal     *Counter
	yieldClaimTotal     *Counter
	vestingReleaseTotal *Counter

	// Amount distributions in MXI
	creditAmount     *Histogram
	commissionAmount *Histogram

	// Gauge metrics (point-in-time values)
	paymentsByStatus        *Gauge
	openVerificationCount   *Gauge
	dueVestingScheduleCount *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	snapshotProvider LedgerSnapshotProvider
}

// LedgerSnapshotProvider provides backlog data for periodic metrics collection.
// This interface lets the telemetry layer read ledger state without depending
// on the persistence layer.
type LedgerSnapshotProvider interface {
	// CountPaymentsByStatus returns the number of payment references per status
	CountPaymentsByStatus(ctx context.Context) (map[string]int64, error)

	// CountOpenVerifications returns verification requests awaiting a decision
	CountOpenVerifications(ctx context.Context) (int64, error)

	// CountDueVestingSchedules returns schedules with a tick due now
	CountDueVestingSchedules(ctx context.Context, now time.Time) (int64, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter            metric.Meter
	Logger           *zap.Logger
	SnapshotProvider LedgerSnapshotProvider
}

// AmountBuckets are bucket boundaries for MXI amounts.
var AmountBuckets = []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:            cfg.Meter,
		logger:           logger,
		stopChan:         make(chan struct{}),
		snapshotProvider: cfg.SnapshotProvider,
	}

	counters := []struct {
		target      **Counter
		name, descr string
		unit        string
	}{
		{&lm.creditTotal, "mxi_credit_total", "Credit attempts by outcome and source", "{credits}"},
		{&lm.creditFailureTotal, "mxi_credit_failure_total", "Payments parked in credit_failed", "{payments}"},
		{&lm.signalTotal, "mxi_gateway_signal_total", "Gateway status signals by outcome", "{signals}"},
		{&lm.commissionTotal, "mxi_commission_event_total", "Commission events by referral level", "{events}"},
		{&lm.yieldClaimTotal, "mxi_yield_claim_total", "Yield claims by result", "{claims}"},
		{&lm.vestingReleaseTotal, "mxi_vesting_release_total", "Vesting release ticks", "{releases}"},
	}
	var err error
	for _, c := range counters {
		if *c.target, err = NewCounter(cfg.Meter, c.name, c.descr, c.unit); err != nil {
			return nil, err
		}
	}

	lm.creditAmount, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "mxi_credit_amount",
		Description: "Credited purchase amounts",
		Unit:        "{MXI}",
		Boundaries:  AmountBuckets,
	})
	if err != nil {
		return nil, err
	}

	lm.commissionAmount, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "mxi_commission_amount",
		Description: "Commission amounts per event",
		Unit:        "{MXI}",
		Boundaries:  AmountBuckets,
	})
	if err != nil {
		return nil, err
	}

	lm.paymentsByStatus, err = NewGauge(cfg.Meter, "mxi_payment_references", "Payment references per status", "{payments}")
	if err != nil {
		return nil, err
	}
	lm.openVerificationCount, err = NewGauge(cfg.Meter, "mxi_open_verification_requests", "Verification requests awaiting a decision", "{requests}")
	if err != nil {
		return nil, err
	}
	lm.dueVestingScheduleCount, err = NewGauge(cfg.Meter, "mxi_due_vesting_schedules", "Vesting schedules with a tick due", "{schedules}")
	if err != nil {
		return nil, err
	}

	return lm, nil
}

func amountFloat(amount decimal.Decimal) float64 {
	f, _ := amount.Float64()
	return f
}

// =============================================================================
// Ledger Event Metrics
// =============================================================================

// RecordCredit records a credit attempt. Only fresh credits add to the amount distribution.
func (lm *LedgerMetrics) RecordCredit(ctx context.Context, outcome, source string, amount decimal.Decimal) {
	lm.creditTotal.Inc(ctx, AttrOutcome.String(outcome), AttrCreditSource.String(source))
	if outcome == "credited" {
		lm.creditAmount.Record(ctx, amountFloat(amount), AttrCreditSource.String(source))
	}
}

// RecordCreditFailure records a payment parked in credit_failed.
func (lm *LedgerMetrics) RecordCreditFailure(ctx context.Context, source string) {
	lm.creditFailureTotal.Inc(ctx, AttrCreditSource.String(source))
}

// RecordSignal records a processed gateway status signal.
func (lm *LedgerMetrics) RecordSignal(ctx context.Context, outcome string) {
	lm.signalTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordCommission records one commission event.
func (lm *LedgerMetrics) RecordCommission(ctx context.Context, level int, amount decimal.Decimal) {
	lm.commissionTotal.Inc(ctx, AttrReferralLevel.Int(level))
	lm.commissionAmount.Record(ctx, amountFloat(amount), AttrReferralLevel.Int(level))
}

// RecordYieldClaim records a yield claim attempt.
func (lm *LedgerMetrics) RecordYieldClaim(ctx context.Context, claimed bool, _ decimal.Decimal) {
	result := "claimed"
	if !claimed {
		result = "rejected"
	}
	lm.yieldClaimTotal.Inc(ctx, AttrOutcome.String(result))
}

// RecordVestingRelease records a completed vesting tick.
func (lm *LedgerMetrics) RecordVestingRelease(ctx context.Context, _ decimal.Decimal) {
	lm.vestingReleaseTotal.Inc(ctx)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics
// (default: every 5 minutes). This is non-blocking - use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go lm.runPeriodicCollection(ctx, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	lm.collectSnapshot(ctx)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectSnapshot(ctx)
		}
	}
}

func (lm *LedgerMetrics) collectSnapshot(ctx context.Context) {
	if lm.snapshotProvider == nil {
		lm.logger.Debug("No snapshot provider configured, skipping ledger gauge collection")
		return
	}

	byStatus, err := lm.snapshotProvider.CountPaymentsByStatus(ctx)
	if err != nil {
		lm.logger.Warn("Failed to count payment references", zap.Error(err))
	} else {
		for status, count := range byStatus {
			lm.paymentsByStatus.Record(ctx, count, AttrPaymentStatus.String(status))
		}
	}

	open, err := lm.snapshotProvider.CountOpenVerifications(ctx)
	if err != nil {
		lm.logger.Warn("Failed to count open verification requests", zap.Error(err))
	} else {
		lm.openVerificationCount.Record(ctx, open)
	}

	due, err := lm.snapshotProvider.CountDueVestingSchedules(ctx, time.Now().UTC())
	if err != nil {
		lm.logger.Warn("Failed to count due vesting schedules", zap.Error(err))
	} else {
		lm.dueVestingScheduleCount.Record(ctx, due)
	}
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// Ledger metrics attribute keys not already defined in metrics.go
var (
	AttrOutcome       = attribute.Key("outcome")
	AttrCreditSource  = attribute.Key("credit_source")
	AttrReferralLevel = attribute.Key("referral_level")
)
