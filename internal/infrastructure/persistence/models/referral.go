package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
)

// ReferralEdgeModel stores one ancestor link of the referral tree. The
// closure style table lets the upline be read with a single indexed query.
type ReferralEdgeModel struct {
	ReferredID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Level      int       `gorm:"primaryKey;autoIncrement:false"`
	ReferrerID uuid.UUID `gorm:"type:uuid;not null;index:idx_referral_edges_referrer,priority:1"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReferralEdgeModel) TableName() string {
	return "referral_edges"
}

// ToDomain converts the persistence model to a domain ReferralEdge
func (m *ReferralEdgeModel) ToDomain() ledger.ReferralEdge {
	return ledger.ReferralEdge{
		ReferrerID: m.ReferrerID,
		ReferredID: m.ReferredID,
		Level:      m.Level,
	}
}

// ReferralEdgeModelFromDomain converts a domain ReferralEdge to its persistence model
func ReferralEdgeModelFromDomain(e ledger.ReferralEdge, now time.Time) ReferralEdgeModel {
	return ReferralEdgeModel{
		ReferredID: e.ReferredID,
		Level:      e.Level,
		ReferrerID: e.ReferrerID,
		CreatedAt:  now,
	}
}
