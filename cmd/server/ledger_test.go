package main

import (
	"testing"
	"time"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerConfig(t *testing.T) {
	t.Run("empty section keeps the defaults", func(t *testing.T) {
		got := ledgerConfig(config.LedgerConfig{}, 0)
		want := appledger.DefaultConfig()

		assert.True(t, got.TokenPrice.Equal(want.TokenPrice))
		assert.True(t, got.Yield.RatePerUnitPerMinute.Equal(want.Yield.RatePerUnitPerMinute))
		assert.Equal(t, want.Requirements, got.Requirements)
		assert.Equal(t, want.GatewayTimeout, got.GatewayTimeout)
		assert.Equal(t, "MXI-", got.OrderIDPrefix)
	})

	t.Run("overrides every configured field", func(t *testing.T) {
		got := ledgerConfig(config.LedgerConfig{
			TokenPrice:         d("0.55"),
			YieldRatePerMonth:  d("0.0432"),
			MaxYieldWindow:     time.Hour,
			MinActiveReferrals: 3,
			MinAccountAge:      48 * time.Hour,
			ContributionRates:  []decimal.Decimal{d("0.1"), d("0.05"), d("0.01")},
			GamesRates:         []decimal.Decimal{d("0.04"), d("0.02"), d("0.01")},
			VestingPercentage:  d("0.2"),
			VestingInterval:    24 * time.Hour,
			MaxCreditAttempts:  5,
			OrderIDPrefix:      "PRE-",
		}, 3*time.Second)

		assert.Equal(t, "0.55", got.TokenPrice.String())
		// 0.0432 per month over 43200 minutes
		assert.Equal(t, "0.000001", got.Yield.RatePerUnitPerMinute.String())
		assert.Equal(t, time.Hour, got.Yield.MaxElapsed)
		assert.Equal(t, 3, got.Requirements.MinActiveReferrals)
		assert.Equal(t, 48*time.Hour, got.Requirements.MinAccountAge)
		assert.Equal(t, "0.1", got.Commission.Contribution[0].String())
		assert.Equal(t, "0.04", got.Commission.Games[0].String())
		assert.Equal(t, "0.2", got.Vesting.ReleasePercentage.String())
		assert.Equal(t, 24*time.Hour, got.Vesting.Interval)
		assert.Equal(t, 5, got.MaxCreditAttempts)
		assert.Equal(t, "PRE-", got.OrderIDPrefix)
		assert.Equal(t, 3*time.Second, got.GatewayTimeout)
	})

	t.Run("rate lists of the wrong length are ignored", func(t *testing.T) {
		got := ledgerConfig(config.LedgerConfig{
			ContributionRates: []decimal.Decimal{d("0.5")},
		}, 0)
		assert.Equal(t, appledger.DefaultConfig().Commission, got.Commission)
	})
}
