package persistence

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettingsRepository implements SettingsRepository using GORM
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// IsLaunched reads the launch flag; a missing row means not launched
func (r *GormSettingsRepository) IsLaunched(ctx context.Context) (bool, error) {
	var rows []models.SettingModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", models.SettingKeyLaunched).
		Limit(1).
		Find(&rows).Error; err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	launched, err := strconv.ParseBool(rows[0].Value)
	if err != nil {
		return false, nil
	}
	return launched, nil
}

// SetLaunched upserts the launch flag
func (r *GormSettingsRepository) SetLaunched(ctx context.Context, launched bool, by uuid.UUID) error {
	row := models.SettingModel{
		Key:       models.SettingKeyLaunched,
		Value:     strconv.FormatBool(launched),
		UpdatedBy: &by,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(&row).Error
}

var _ ledger.SettingsRepository = (*GormSettingsRepository)(nil)
