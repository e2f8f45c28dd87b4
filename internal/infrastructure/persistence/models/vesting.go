package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// Unique index names on the vesting tables
const (
	IndexVestingScheduleAccount = "uq_vesting_schedules_account"
	IndexVestingReleaseTick     = "uq_vesting_releases_account_tick"
)

// VestingScheduleModel is the persistence model for the VestingSchedule aggregate root.
type VestingScheduleModel struct {
	AggregateModel
	AccountID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_vesting_schedules_account"`
	LockedAtStart     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	ReleasedAmount    decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	WithdrawnAmount   decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	ReleasePercentage decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	IntervalSeconds   int64           `gorm:"not null"`
	NextReleaseAt     time.Time       `gorm:"not null;index:idx_vesting_schedules_next_release"`
	TicksCompleted    int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (VestingScheduleModel) TableName() string {
	return "vesting_schedules"
}

// ToDomain converts the persistence model to a domain VestingSchedule
func (m *VestingScheduleModel) ToDomain() *ledger.VestingSchedule {
	return &ledger.VestingSchedule{
		BaseAggregateRoot: m.ToAggregateRoot(),
		AccountID:         m.AccountID,
		LockedAtStart:     m.LockedAtStart,
		ReleasedAmount:    m.ReleasedAmount,
		WithdrawnAmount:   m.WithdrawnAmount,
		ReleasePercentage: m.ReleasePercentage,
		Interval:          time.Duration(m.IntervalSeconds) * time.Second,
		NextReleaseAt:     m.NextReleaseAt,
		TicksCompleted:    m.TicksCompleted,
	}
}

// VestingScheduleModelFromDomain converts a domain VestingSchedule to its persistence model
func VestingScheduleModelFromDomain(s *ledger.VestingSchedule) *VestingScheduleModel {
	m := &VestingScheduleModel{
		AccountID:         s.AccountID,
		LockedAtStart:     s.LockedAtStart,
		ReleasedAmount:    s.ReleasedAmount,
		WithdrawnAmount:   s.WithdrawnAmount,
		ReleasePercentage: s.ReleasePercentage,
		IntervalSeconds:   int64(s.Interval / time.Second),
		NextReleaseAt:     s.NextReleaseAt,
		TicksCompleted:    s.TicksCompleted,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}

// UpdateColumns lists the columns written by a compare-and-swap save
func (m *VestingScheduleModel) UpdateColumns() map[string]any {
	return map[string]any{
		"locked_at_start":    m.LockedAtStart,
		"released_amount":    m.ReleasedAmount,
		"withdrawn_amount":   m.WithdrawnAmount,
		"release_percentage": m.ReleasePercentage,
		"interval_seconds":   m.IntervalSeconds,
		"next_release_at":    m.NextReleaseAt,
		"ticks_completed":    m.TicksCompleted,
		"version":            m.Version,
		"updated_at":         m.UpdatedAt,
	}
}

// VestingReleaseModel is the idempotency record of one vesting tick
type VestingReleaseModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ScheduleID uuid.UUID       `gorm:"type:uuid;not null"`
	AccountID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_vesting_releases_account_tick,priority:1"`
	TickIndex  int             `gorm:"not null;uniqueIndex:uq_vesting_releases_account_tick,priority:2"`
	Amount     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	ReleasedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VestingReleaseModel) TableName() string {
	return "vesting_releases"
}

// ToDomain converts the persistence model to a domain VestingRelease
func (m *VestingReleaseModel) ToDomain() ledger.VestingRelease {
	return ledger.VestingRelease{
		ScheduleID: m.ScheduleID,
		AccountID:  m.AccountID,
		TickIndex:  m.TickIndex,
		Amount:     m.Amount,
		ReleasedAt: m.ReleasedAt,
	}
}

// VestingReleaseModelFromDomain converts a domain VestingRelease to its persistence model
func VestingReleaseModelFromDomain(r ledger.VestingRelease) *VestingReleaseModel {
	return &VestingReleaseModel{
		ID:         uuid.New(),
		ScheduleID: r.ScheduleID,
		AccountID:  r.AccountID,
		TickIndex:  r.TickIndex,
		Amount:     r.Amount,
		ReleasedAt: r.ReleasedAt,
	}
}
