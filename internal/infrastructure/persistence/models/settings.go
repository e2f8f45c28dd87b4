package models

import (
	"time"

	"github.com/google/uuid"
)

// SettingKeyLaunched is the global launch flag gating withdrawals
const SettingKeyLaunched = "launched"

// SettingModel stores one global ledger flag
type SettingModel struct {
	Key       string     `gorm:"type:varchar(64);primaryKey"`
	Value     string     `gorm:"type:text;not null"`
	UpdatedBy *uuid.UUID `gorm:"type:uuid"`
	UpdatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SettingModel) TableName() string {
	return "ledger_settings"
}
