package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// AccountModel is the persistence model for the Account aggregate root.
type AccountModel struct {
	AggregateModel
	PurchasedBalance     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CommissionTotal      decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CommissionAvailable  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CommissionWithdrawn  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	ChallengeBalance     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	VestingLockedBalance decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	AccumulatedYield     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CarriedYield         decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	YieldRatePerMinute   decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	LastYieldCheckpoint  time.Time       `gorm:"not null"`
	ActiveReferralCount  int             `gorm:"not null;default:0"`
	KYCApproved          bool            `gorm:"column:kyc_approved;not null;default:false"`
	ReferredBy           *uuid.UUID      `gorm:"type:uuid;index:idx_accounts_referred_by"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *ledger.Account {
	return &ledger.Account{
		BaseAggregateRoot: m.ToAggregateRoot(),
		PurchasedBalance:  m.PurchasedBalance,
		Commission: ledger.CommissionBalance{
			Total:     m.CommissionTotal,
			Available: m.CommissionAvailable,
			Withdrawn: m.CommissionWithdrawn,
		},
		ChallengeBalance:     m.ChallengeBalance,
		VestingLockedBalance: m.VestingLockedBalance,
		AccumulatedYield:     m.AccumulatedYield,
		CarriedYield:         m.CarriedYield,
		YieldRatePerMinute:   m.YieldRatePerMinute,
		LastYieldCheckpoint:  m.LastYieldCheckpoint,
		ActiveReferralCount:  m.ActiveReferralCount,
		KYCApproved:          m.KYCApproved,
		ReferredBy:           m.ReferredBy,
	}
}

// AccountModelFromDomain converts a domain Account to its persistence model
func AccountModelFromDomain(a *ledger.Account) *AccountModel {
	m := &AccountModel{
		PurchasedBalance:     a.PurchasedBalance,
		CommissionTotal:      a.Commission.Total,
		CommissionAvailable:  a.Commission.Available,
		CommissionWithdrawn:  a.Commission.Withdrawn,
		ChallengeBalance:     a.ChallengeBalance,
		VestingLockedBalance: a.VestingLockedBalance,
		AccumulatedYield:     a.AccumulatedYield,
		CarriedYield:         a.CarriedYield,
		YieldRatePerMinute:   a.YieldRatePerMinute,
		LastYieldCheckpoint:  a.LastYieldCheckpoint,
		ActiveReferralCount:  a.ActiveReferralCount,
		KYCApproved:          a.KYCApproved,
		ReferredBy:           a.ReferredBy,
	}
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	return m
}

// UpdateColumns lists the columns written by a compare-and-swap save
func (m *AccountModel) UpdateColumns() map[string]any {
	return map[string]any{
		"purchased_balance":      m.PurchasedBalance,
		"commission_total":       m.CommissionTotal,
		"commission_available":   m.CommissionAvailable,
		"commission_withdrawn":   m.CommissionWithdrawn,
		"challenge_balance":      m.ChallengeBalance,
		"vesting_locked_balance": m.VestingLockedBalance,
		"accumulated_yield":      m.AccumulatedYield,
		"carried_yield":          m.CarriedYield,
		"yield_rate_per_minute":  m.YieldRatePerMinute,
		"last_yield_checkpoint":  m.LastYieldCheckpoint,
		"active_referral_count":  m.ActiveReferralCount,
		"kyc_approved":           m.KYCApproved,
		"version":                m.Version,
		"updated_at":             m.UpdatedAt,
	}
}
