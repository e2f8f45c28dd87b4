package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CommissionScheme selects the per-level rates
type CommissionScheme string

const (
	// SchemeContribution applies to presale contributions
	SchemeContribution CommissionScheme = "contribution"
	// SchemeGames applies to in-app game entries
	SchemeGames CommissionScheme = "games"
)

// IsValid checks if the scheme is known
func (s CommissionScheme) IsValid() bool {
	return s == SchemeContribution || s == SchemeGames
}

// CommissionRates holds the rate paid at each referral level, index 0 = level 1
type CommissionRates [MaxReferralLevel]decimal.Decimal

// CommissionPolicy maps each scheme to its rates
type CommissionPolicy struct {
	Contribution CommissionRates
	Games        CommissionRates
}

// DefaultCommissionPolicy pays 5/2/1 percent, or 3/2/1 for games.
func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		Contribution: CommissionRates{
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
			decimal.RequireFromString("0.01"),
		},
		Games: CommissionRates{
			decimal.RequireFromString("0.03"),
			decimal.RequireFromString("0.02"),
			decimal.RequireFromString("0.01"),
		},
	}
}

// Rates returns the rates for a scheme
func (p CommissionPolicy) Rates(scheme CommissionScheme) CommissionRates {
	if scheme == SchemeGames {
		return p.Games
	}
	return p.Contribution
}

// CommissionStatus is the state of a CommissionEvent
type CommissionStatus string

const (
	CommissionAvailable CommissionStatus = "available"
	CommissionWithdrawn CommissionStatus = "withdrawn"
)

// CommissionEvent is one append-only commission credit
type CommissionEvent struct {
	ID                   uuid.UUID
	AccountID            uuid.UUID
	SourceAccountID      uuid.UUID
	SourceContributionID uuid.UUID
	Scheme               CommissionScheme
	Level                int
	Rate                 decimal.Decimal
	Amount               decimal.Decimal
	Status               CommissionStatus
	CreatedAt            time.Time
	WithdrawnAt          *time.Time
}

// MarkWithdrawn flips an available event to withdrawn
func (e *CommissionEvent) MarkWithdrawn(now time.Time) error {
	if e.Status != CommissionAvailable {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "commission %s is already %s", e.ID, e.Status)
	}
	e.Status = CommissionWithdrawn
	e.WithdrawnAt = &now
	return nil
}

// Contribution is the input to the waterfall
type Contribution struct {
	// ID makes the waterfall idempotent; for payments it is the PaymentReference ID
	ID        uuid.UUID
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Scheme    CommissionScheme
}

// PlanWaterfall computes the commission events for a contribution given the
// contributor's upline. Upline entries are ordered by level; the walk stops
// at the first missing level.
func (p CommissionPolicy) PlanWaterfall(c Contribution, upline []ReferralEdge, now time.Time) ([]*CommissionEvent, error) {
	if c.ID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "contribution id is required")
	}
	if !c.Scheme.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown commission scheme %q", c.Scheme)
	}
	if err := requirePositive(c.Amount, "contribution amount"); err != nil {
		return nil, err
	}

	byLevel := make(map[int]uuid.UUID, len(upline))
	for _, e := range upline {
		byLevel[e.Level] = e.ReferrerID
	}

	rates := p.Rates(c.Scheme)
	var events []*CommissionEvent
	for level := 1; level <= MaxReferralLevel; level++ {
		referrer, ok := byLevel[level]
		if !ok {
			break
		}
		amount := c.Amount.Mul(rates[level-1]).Round(AmountScale)
		if !amount.IsPositive() {
			continue
		}
		events = append(events, &CommissionEvent{
			ID:                   uuid.New(),
			AccountID:            referrer,
			SourceAccountID:      c.AccountID,
			SourceContributionID: c.ID,
			Scheme:               c.Scheme,
			Level:                level,
			Rate:                 rates[level-1],
			Amount:               amount,
			Status:               CommissionAvailable,
			CreatedAt:            now,
		})
	}
	return events, nil
}
