package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// YieldPolicy converts purchased balance into a per-minute accrual rate.
type YieldPolicy struct {
	// RatePerUnitPerMinute is the yield earned per purchased MXI per minute
	RatePerUnitPerMinute decimal.Decimal
	// MaxElapsed bounds a single accrual window. Longer windows are treated
	// as clock corruption and accrue nothing.
	MaxElapsed time.Duration
}

// DefaultYieldPolicy accrues 3% of the purchased balance per 30 days.
func DefaultYieldPolicy() YieldPolicy {
	return YieldPolicy{
		RatePerUnitPerMinute: decimal.RequireFromString("0.03").Div(decimal.NewFromInt(30 * 24 * 60)),
		MaxElapsed:           5 * 365 * 24 * time.Hour,
	}
}

// RateFor returns the per-minute rate for a purchased balance. Commission and
// challenge balances never contribute.
func (p YieldPolicy) RateFor(purchased decimal.Decimal) decimal.Decimal {
	return nonNegative(purchased).Mul(p.RatePerUnitPerMinute)
}

// MinutesElapsed returns the minutes between two instants at second
// resolution, or false when the window is negative or implausibly long.
func (p YieldPolicy) MinutesElapsed(from, to time.Time) (decimal.Decimal, bool) {
	if from.IsZero() {
		return decimal.Zero, false
	}
	elapsed := to.Sub(from)
	if elapsed < 0 {
		return decimal.Zero, false
	}
	if p.MaxElapsed > 0 && elapsed > p.MaxElapsed {
		return decimal.Zero, false
	}
	seconds := decimal.NewFromInt(int64(elapsed / time.Second))
	return seconds.Div(decimal.NewFromInt(60)), true
}

// Accrued computes rate × minutes since checkpoint, clamped to zero for
// corrupt windows.
func (p YieldPolicy) Accrued(rate decimal.Decimal, checkpoint, now time.Time) decimal.Decimal {
	minutes, ok := p.MinutesElapsed(checkpoint, now)
	if !ok {
		return decimal.Zero
	}
	return nonNegative(rate.Mul(minutes))
}
