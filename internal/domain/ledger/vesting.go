package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// VestingPolicy configures new schedules
type VestingPolicy struct {
	ReleasePercentage decimal.Decimal
	Interval          time.Duration
}

// DefaultVestingPolicy releases 10% every 10 days.
func DefaultVestingPolicy() VestingPolicy {
	return VestingPolicy{
		ReleasePercentage: decimal.RequireFromString("0.10"),
		Interval:          10 * 24 * time.Hour,
	}
}

// VestingRelease is the idempotency record of one tick
type VestingRelease struct {
	ScheduleID uuid.UUID
	AccountID  uuid.UUID
	TickIndex  int
	Amount     decimal.Decimal
	ReleasedAt time.Time
}

// VestingSchedule releases a locked balance in fixed-percentage ticks. One per account.
type VestingSchedule struct {
	shared.BaseAggregateRoot
	AccountID uuid.UUID
	// LockedAtStart is the baseline captured before the first tick
	LockedAtStart     decimal.Decimal
	ReleasedAmount    decimal.Decimal
	WithdrawnAmount   decimal.Decimal
	ReleasePercentage decimal.Decimal
	Interval          time.Duration
	NextReleaseAt     time.Time
	TicksCompleted    int
}

// NewVestingSchedule creates a schedule whose first tick is due one interval from now
func NewVestingSchedule(accountID uuid.UUID, policy VestingPolicy, now time.Time) (*VestingSchedule, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "account id is required")
	}
	if !policy.ReleasePercentage.IsPositive() || policy.ReleasePercentage.GreaterThan(decimal.NewFromInt(1)) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "release percentage must be in (0, 1]")
	}
	if policy.Interval <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "release interval must be positive")
	}
	return &VestingSchedule{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AccountID:         accountID,
		LockedAtStart:     decimal.Zero,
		ReleasedAmount:    decimal.Zero,
		WithdrawnAmount:   decimal.Zero,
		ReleasePercentage: policy.ReleasePercentage,
		Interval:          policy.Interval,
		NextReleaseAt:     now.Add(policy.Interval),
	}, nil
}

// Fund adds to the baseline. The baseline is frozen once the first tick ran.
func (s *VestingSchedule) Fund(amount decimal.Decimal) error {
	if err := requirePositive(amount, "vesting amount"); err != nil {
		return err
	}
	if s.TicksCompleted > 0 {
		return shared.NewDomainError(shared.CodeInvalidState, "vesting schedule already started releasing")
	}
	s.LockedAtStart = s.LockedAtStart.Add(amount)
	s.IncrementVersion()
	return nil
}

// IsComplete reports whether everything has been released
func (s *VestingSchedule) IsComplete() bool {
	return s.ReleasedAmount.GreaterThanOrEqual(s.LockedAtStart)
}

// IsDue reports whether a tick may run at now
func (s *VestingSchedule) IsDue(now time.Time) bool {
	return !s.NextReleaseAt.After(now)
}

// Tick runs one release if due. A due tick on a completed schedule releases
// zero and leaves the schedule untouched. The returned release is nil when
// nothing was recorded.
func (s *VestingSchedule) Tick(now time.Time) (*VestingRelease, error) {
	if !s.IsDue(now) || !s.LockedAtStart.IsPositive() || s.IsComplete() {
		return nil, nil
	}

	amount := s.LockedAtStart.Mul(s.ReleasePercentage).Round(AmountScale)
	remaining := s.LockedAtStart.Sub(s.ReleasedAmount)
	if amount.GreaterThan(remaining) {
		amount = remaining
	}

	s.ReleasedAmount = s.ReleasedAmount.Add(amount)
	s.TicksCompleted++
	s.NextReleaseAt = s.NextReleaseAt.Add(s.Interval)
	if !s.NextReleaseAt.After(now) {
		// a long outage must not unlock several ticks in one sweep
		s.NextReleaseAt = now.Add(s.Interval)
	}
	s.IncrementVersion()

	release := VestingRelease{
		ScheduleID: s.ID,
		AccountID:  s.AccountID,
		TickIndex:  s.TicksCompleted,
		Amount:     amount,
		ReleasedAt: now,
	}
	s.AddDomainEvent(NewVestingReleasedEvent(s, release))
	return &release, nil
}

// Withdrawable is released minus already withdrawn
func (s *VestingSchedule) Withdrawable() decimal.Decimal {
	return nonNegative(s.ReleasedAmount.Sub(s.WithdrawnAmount))
}

// Withdraw records a withdrawal of released funds
func (s *VestingSchedule) Withdraw(amount decimal.Decimal) error {
	if err := requirePositive(amount, "withdrawal amount"); err != nil {
		return err
	}
	if amount.GreaterThan(s.Withdrawable()) {
		return shared.ErrInsufficientBalance
	}
	s.WithdrawnAmount = s.WithdrawnAmount.Add(amount)
	s.IncrementVersion()
	return nil
}
