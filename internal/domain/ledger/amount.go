package ledger

import (
	"strings"

	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for MXI and stablecoin amounts.
const AmountScale int32 = 8

// ParseAmount is the single parsing seam for monetary and token quantities
// arriving as strings (HTTP bodies, gateway payloads, database text columns).
// It rejects empty, malformed and negative input.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, shared.NewDomainError(shared.CodeInvalidInput, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.NewDomainErrorf(shared.CodeInvalidInput, "malformed amount %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, shared.NewDomainErrorf(shared.CodeInvalidInput, "amount %q must not be negative", raw)
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount that also rejects zero.
func ParsePositiveAmount(raw string) (decimal.Decimal, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, shared.NewDomainErrorf(shared.CodeInvalidInput, "amount %q must be positive", raw)
	}
	return d, nil
}

// ParseOptionalAmount parses an optional field. Missing or malformed values
// explicitly default to nil rather than zero so callers can tell them apart.
func ParseOptionalAmount(raw string) *decimal.Decimal {
	d, err := ParseAmount(raw)
	if err != nil {
		return nil
	}
	return &d
}

func requirePositive(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() {
		return shared.NewDomainErrorf(shared.CodeInvalidInput, "%s must be positive", field)
	}
	return nil
}

// nonNegative returns zero for negative values.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
