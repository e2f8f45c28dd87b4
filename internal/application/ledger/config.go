package ledger

import (
	"time"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the business parameters shared by the ledger services
type Config struct {
	Yield        ledger.YieldPolicy
	Requirements ledger.RequirementsPolicy
	Commission   ledger.CommissionPolicy
	Vesting      ledger.VestingPolicy
	// TokenPrice is the fiat price of one MXI used to size new contributions
	TokenPrice decimal.Decimal
	// MaxCreditAttempts bounds transparent retries after a lost compare-and-swap
	MaxCreditAttempts int
	// GatewayTimeout bounds each call to the payment gateway
	GatewayTimeout time.Duration
	// OrderIDPrefix is prepended to server generated order IDs
	OrderIDPrefix string
}

// DefaultConfig returns the presale defaults
func DefaultConfig() Config {
	return Config{
		Yield:             ledger.DefaultYieldPolicy(),
		Requirements:      ledger.DefaultRequirementsPolicy(),
		Commission:        ledger.DefaultCommissionPolicy(),
		Vesting:           ledger.DefaultVestingPolicy(),
		TokenPrice:        decimal.RequireFromString("0.40"),
		MaxCreditAttempts: 3,
		GatewayTimeout:    10 * time.Second,
		OrderIDPrefix:     "MXI-",
	}
}

// Deps are the collaborators every ledger service is built from
type Deps struct {
	Scope   TransactionScope
	Config  Config
	Metrics Metrics
	Logger  *zap.Logger
	// Now overrides the clock in tests
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Config.MaxCreditAttempts < 1 {
		d.Config.MaxCreditAttempts = 1
	}
	return d
}
