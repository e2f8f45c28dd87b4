package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// IndexCommissionContributionLevel makes the waterfall idempotent per contribution
const IndexCommissionContributionLevel = "uq_commission_events_contribution_level"

// CommissionEventModel is the append-only persistence model for commission credits.
type CommissionEventModel struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID            uuid.UUID       `gorm:"type:uuid;not null;index:idx_commission_events_account_status,priority:1"`
	SourceAccountID      uuid.UUID       `gorm:"type:uuid;not null"`
	SourceContributionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_commission_events_contribution_level,priority:1"`
	Scheme               string          `gorm:"type:varchar(16);not null"`
	Level                int             `gorm:"not null;uniqueIndex:uq_commission_events_contribution_level,priority:2"`
	Rate                 decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	Amount               decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Status               string          `gorm:"type:varchar(16);not null;index:idx_commission_events_account_status,priority:2"`
	CreatedAt            time.Time       `gorm:"not null"`
	WithdrawnAt          *time.Time
}

// TableName returns the table name for GORM
func (CommissionEventModel) TableName() string {
	return "commission_events"
}

// ToDomain converts the persistence model to a domain CommissionEvent
func (m *CommissionEventModel) ToDomain() *ledger.CommissionEvent {
	return &ledger.CommissionEvent{
		ID:                   m.ID,
		AccountID:            m.AccountID,
		SourceAccountID:      m.SourceAccountID,
		SourceContributionID: m.SourceContributionID,
		Scheme:               ledger.CommissionScheme(m.Scheme),
		Level:                m.Level,
		Rate:                 m.Rate,
		Amount:               m.Amount,
		Status:               ledger.CommissionStatus(m.Status),
		CreatedAt:            m.CreatedAt,
		WithdrawnAt:          m.WithdrawnAt,
	}
}

// CommissionEventModelFromDomain converts a domain CommissionEvent to its persistence model
func CommissionEventModelFromDomain(e *ledger.CommissionEvent) *CommissionEventModel {
	return &CommissionEventModel{
		ID:                   e.ID,
		AccountID:            e.AccountID,
		SourceAccountID:      e.SourceAccountID,
		SourceContributionID: e.SourceContributionID,
		Scheme:               string(e.Scheme),
		Level:                e.Level,
		Rate:                 e.Rate,
		Amount:               e.Amount,
		Status:               string(e.Status),
		CreatedAt:            e.CreatedAt,
		WithdrawnAt:          e.WithdrawnAt,
	}
}
