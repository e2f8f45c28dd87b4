package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	vestingScheduleRules = []uniqueRule{{
		index: models.IndexVestingScheduleAccount, columns: "vesting_schedules.account_id", target: shared.ErrAlreadyExists,
	}}
	vestingReleaseRules = []uniqueRule{{
		index: models.IndexVestingReleaseTick, columns: "vesting_releases.account_id, vesting_releases.tick_index", target: shared.ErrAlreadyExists,
	}}
)

// GormVestingRepository implements VestingRepository using GORM
type GormVestingRepository struct {
	db *gorm.DB
}

// NewGormVestingRepository creates a new GormVestingRepository
func NewGormVestingRepository(db *gorm.DB) *GormVestingRepository {
	return &GormVestingRepository{db: db}
}

func (r *GormVestingRepository) find(q *gorm.DB, accountID uuid.UUID) (*ledger.VestingSchedule, error) {
	var m models.VestingScheduleModel
	if err := q.First(&m, "account_id = ?", accountID).Error; err != nil {
		return nil, notFound(err)
	}
	return m.ToDomain(), nil
}

// FindByAccount finds the schedule of an account
func (r *GormVestingRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*ledger.VestingSchedule, error) {
	return r.find(r.db.WithContext(ctx), accountID)
}

// FindByAccountForUpdate finds the schedule of an account and locks its row
func (r *GormVestingRepository) FindByAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*ledger.VestingSchedule, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountID)
}

// ListDue returns funded, unfinished schedules whose next tick is due, earliest first
func (r *GormVestingRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]ledger.VestingSchedule, error) {
	var rows []models.VestingScheduleModel
	if err := r.db.WithContext(ctx).
		Where("next_release_at <= ? AND locked_at_start > 0 AND released_amount < locked_at_start", now).
		Order("next_release_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.VestingSchedule, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a schedule; an account may only have one
func (r *GormVestingRepository) Create(ctx context.Context, s *ledger.VestingSchedule) error {
	if err := r.db.WithContext(ctx).Create(models.VestingScheduleModelFromDomain(s)).Error; err != nil {
		return translateWriteError(err, vestingScheduleRules...)
	}
	s.MarkPersisted()
	return nil
}

// Save writes the schedule if its version is unchanged since it was loaded
func (r *GormVestingRepository) Save(ctx context.Context, s *ledger.VestingSchedule) error {
	m := models.VestingScheduleModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Model(&models.VestingScheduleModel{}).
		Where("id = ? AND version = ?", s.ID, s.PersistedVersion()).
		Updates(m.UpdateColumns())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	s.MarkPersisted()
	return nil
}

// RecordRelease stores the idempotency record of one tick
func (r *GormVestingRepository) RecordRelease(ctx context.Context, rel ledger.VestingRelease) error {
	err := r.db.WithContext(ctx).Create(models.VestingReleaseModelFromDomain(rel)).Error
	return translateWriteError(err, vestingReleaseRules...)
}

// ListReleases lists an account's releases in tick order
func (r *GormVestingRepository) ListReleases(ctx context.Context, accountID uuid.UUID) ([]ledger.VestingRelease, error) {
	var rows []models.VestingReleaseModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("tick_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.VestingRelease, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ ledger.VestingRepository = (*GormVestingRepository)(nil)
