package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Balance change reasons carried by AccountBalanceChangedEvent
const (
	ReasonPaymentCredited     = "payment_credited"
	ReasonCommissionCredited  = "commission_credited"
	ReasonCommissionWithdrawn = "commission_withdrawn"
	ReasonYieldClaimed        = "yield_claimed"
	ReasonVestingFunded       = "vesting_funded"
	ReasonVestingWithdrawn    = "vesting_withdrawn"
)

// CommissionBalance aggregates an account's CommissionEvents
type CommissionBalance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
	Withdrawn decimal.Decimal
}

// Account is the server-authoritative holder of a user's balances.
// The ID is the identity provider's user ID.
type Account struct {
	shared.BaseAggregateRoot
	PurchasedBalance     decimal.Decimal
	Commission           CommissionBalance
	ChallengeBalance     decimal.Decimal
	VestingLockedBalance decimal.Decimal
	AccumulatedYield     decimal.Decimal
	// CarriedYield holds yield accrued at a previous rate and not yet claimed.
	// It is folded in whenever the rate changes so accrual is never recomputed
	// retroactively.
	CarriedYield        decimal.Decimal
	YieldRatePerMinute  decimal.Decimal
	LastYieldCheckpoint time.Time
	ActiveReferralCount int
	KYCApproved         bool
	ReferredBy          *uuid.UUID
}

// NewAccount creates an account with zero balances
func NewAccount(id uuid.UUID, referredBy *uuid.UUID, now time.Time) (*Account, error) {
	if id == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "account id is required")
	}
	if referredBy != nil && *referredBy == id {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "an account cannot refer itself")
	}

	a := &Account{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.NewBaseEntityWithID(id),
			Version:    1,
		},
		PurchasedBalance:     decimal.Zero,
		ChallengeBalance:     decimal.Zero,
		VestingLockedBalance: decimal.Zero,
		AccumulatedYield:     decimal.Zero,
		CarriedYield:         decimal.Zero,
		YieldRatePerMinute:   decimal.Zero,
		LastYieldCheckpoint:  now,
		ReferredBy:           referredBy,
		Commission: CommissionBalance{
			Total:     decimal.Zero,
			Available: decimal.Zero,
			Withdrawn: decimal.Zero,
		},
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	a.AddDomainEvent(NewAccountRegisteredEvent(a))
	return a, nil
}

// Age returns how long the account has existed
func (a *Account) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// HasContributed reports whether the account has any purchased balance
func (a *Account) HasContributed() bool {
	return a.PurchasedBalance.IsPositive()
}

// UnclaimedYield is the yield accrued since the last claim and not yet
// snapshotted into AccumulatedYield.
func (a *Account) UnclaimedYield(now time.Time, policy YieldPolicy) decimal.Decimal {
	return nonNegative(a.CarriedYield).Add(policy.Accrued(a.YieldRatePerMinute, a.LastYieldCheckpoint, now))
}

// TotalBalance sums every bucket plus live unclaimed yield
func (a *Account) TotalBalance(now time.Time, policy YieldPolicy) decimal.Decimal {
	return a.PurchasedBalance.
		Add(a.Commission.Total).
		Add(a.ChallengeBalance).
		Add(a.VestingLockedBalance).
		Add(a.AccumulatedYield).
		Add(a.UnclaimedYield(now, policy))
}

// CreditPurchase adds a credited contribution to the purchased balance and
// re-derives the accrual rate. Yield accrued at the old rate is carried so
// the new rate applies from now forward only.
func (a *Account) CreditPurchase(amount decimal.Decimal, policy YieldPolicy, now time.Time) error {
	if err := requirePositive(amount, "credit amount"); err != nil {
		return err
	}
	a.checkpointYield(now, policy)
	a.PurchasedBalance = a.PurchasedBalance.Add(amount)
	a.YieldRatePerMinute = policy.RateFor(a.PurchasedBalance)
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalancePurchased, ReasonPaymentCredited, amount))
	return nil
}

func (a *Account) checkpointYield(now time.Time, policy YieldPolicy) {
	a.CarriedYield = a.UnclaimedYield(now, policy)
	a.LastYieldCheckpoint = now
}

// ClaimYield snapshots unclaimed yield into AccumulatedYield. Nothing is
// mutated when a requirement is unmet.
func (a *Account) ClaimYield(now time.Time, policy YieldPolicy, reqs RequirementsPolicy) (decimal.Decimal, error) {
	if unmet := reqs.UnmetForYieldClaim(a, now); len(unmet) > 0 {
		return decimal.Zero, RequirementsError(unmet)
	}
	claimed := a.UnclaimedYield(now, policy)
	a.AccumulatedYield = a.AccumulatedYield.Add(claimed)
	a.CarriedYield = decimal.Zero
	a.LastYieldCheckpoint = now
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalanceYield, ReasonYieldClaimed, claimed))
	return claimed, nil
}

// CreditCommission adds an available commission
func (a *Account) CreditCommission(amount decimal.Decimal) error {
	if err := requirePositive(amount, "commission amount"); err != nil {
		return err
	}
	a.Commission.Total = a.Commission.Total.Add(amount)
	a.Commission.Available = a.Commission.Available.Add(amount)
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalanceCommission, ReasonCommissionCredited, amount))
	return nil
}

// WithdrawCommission moves an amount from available to withdrawn
func (a *Account) WithdrawCommission(amount decimal.Decimal) error {
	if err := requirePositive(amount, "withdrawal amount"); err != nil {
		return err
	}
	if amount.GreaterThan(a.Commission.Available) {
		return shared.ErrInsufficientBalance
	}
	a.Commission.Available = a.Commission.Available.Sub(amount)
	a.Commission.Withdrawn = a.Commission.Withdrawn.Add(amount)
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalanceCommission, ReasonCommissionWithdrawn, amount.Neg()))
	return nil
}

// LockForVesting adds to the vesting locked balance
func (a *Account) LockForVesting(amount decimal.Decimal) error {
	if err := requirePositive(amount, "vesting amount"); err != nil {
		return err
	}
	a.VestingLockedBalance = a.VestingLockedBalance.Add(amount)
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalanceVesting, ReasonVestingFunded, amount))
	return nil
}

// WithdrawVested removes released vesting funds from the locked balance
func (a *Account) WithdrawVested(amount decimal.Decimal) error {
	if err := requirePositive(amount, "withdrawal amount"); err != nil {
		return err
	}
	if amount.GreaterThan(a.VestingLockedBalance) {
		return shared.ErrInsufficientBalance
	}
	a.VestingLockedBalance = a.VestingLockedBalance.Sub(amount)
	a.IncrementVersion()
	a.AddDomainEvent(NewAccountBalanceChangedEvent(a.ID, BalanceVesting, ReasonVestingWithdrawn, amount.Neg()))
	return nil
}

// RecordActiveReferral counts a direct referral's first contribution
func (a *Account) RecordActiveReferral() {
	a.ActiveReferralCount++
	a.IncrementVersion()
}

// SetKYCApproved records the outcome of the external KYC review
func (a *Account) SetKYCApproved(approved bool) {
	if a.KYCApproved == approved {
		return
	}
	a.KYCApproved = approved
	a.IncrementVersion()
}
