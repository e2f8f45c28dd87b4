package main

import (
	"time"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

// minutesPerMonth converts the monthly yield rate; a month is 30 days.
const minutesPerMonth = 30 * 24 * 60

// ledgerConfig maps the loaded ledger section onto the service config.
// Unset fields keep the presale defaults.
func ledgerConfig(cfg config.LedgerConfig, gatewayTimeout time.Duration) appledger.Config {
	out := appledger.DefaultConfig()

	if cfg.TokenPrice.IsPositive() {
		out.TokenPrice = cfg.TokenPrice
	}
	if cfg.YieldRatePerMonth.IsPositive() {
		out.Yield.RatePerUnitPerMinute = cfg.YieldRatePerMonth.Div(decimal.NewFromInt(minutesPerMonth))
	}
	if cfg.MaxYieldWindow > 0 {
		out.Yield.MaxElapsed = cfg.MaxYieldWindow
	}
	if cfg.MinActiveReferrals > 0 {
		out.Requirements.MinActiveReferrals = cfg.MinActiveReferrals
	}
	if cfg.MinAccountAge > 0 {
		out.Requirements.MinAccountAge = cfg.MinAccountAge
	}
	out.Commission.Contribution = commissionRates(cfg.ContributionRates, out.Commission.Contribution)
	out.Commission.Games = commissionRates(cfg.GamesRates, out.Commission.Games)
	if cfg.VestingPercentage.IsPositive() {
		out.Vesting.ReleasePercentage = cfg.VestingPercentage
	}
	if cfg.VestingInterval > 0 {
		out.Vesting.Interval = cfg.VestingInterval
	}
	if cfg.MaxCreditAttempts > 0 {
		out.MaxCreditAttempts = cfg.MaxCreditAttempts
	}
	if cfg.OrderIDPrefix != "" {
		out.OrderIDPrefix = cfg.OrderIDPrefix
	}
	if gatewayTimeout > 0 {
		out.GatewayTimeout = gatewayTimeout
	}
	return out
}

func commissionRates(rates []decimal.Decimal, fallback ledger.CommissionRates) ledger.CommissionRates {
	if len(rates) != ledger.MaxReferralLevel {
		return fallback
	}
	var out ledger.CommissionRates
	copy(out[:], rates)
	return out
}
