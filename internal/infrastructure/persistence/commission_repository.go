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

var commissionUniqueRules = []uniqueRule{{
	index:   models.IndexCommissionContributionLevel,
	columns: "commission_events.source_contribution_id, commission_events.level",
	target:  shared.ErrAlreadyExists,
}}

// GormCommissionRepository implements CommissionRepository using GORM
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewGormCommissionRepository creates a new GormCommissionRepository
func NewGormCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// ExistsForContribution reports whether the waterfall already ran for a contribution
func (r *GormCommissionRepository) ExistsForContribution(ctx context.Context, contributionID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CommissionEventModel{}).
		Where("source_contribution_id = ?", contributionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBatch inserts every event of one waterfall in a single statement
func (r *GormCommissionRepository) CreateBatch(ctx context.Context, events []*ledger.CommissionEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*models.CommissionEventModel, len(events))
	for i, e := range events {
		rows[i] = models.CommissionEventModelFromDomain(e)
	}
	return translateWriteError(r.db.WithContext(ctx).Create(&rows).Error, commissionUniqueRules...)
}

// ListByAccount lists an account's commission events, newest first
func (r *GormCommissionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[ledger.CommissionEvent], error) {
	f := filter.Normalize()
	q := r.db.WithContext(ctx).Model(&models.CommissionEventModel{}).Where("account_id = ?", accountID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.CommissionEventModel
	if err := q.Order("created_at DESC, level ASC").Offset(f.Offset()).Limit(f.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]ledger.CommissionEvent, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// ListAvailableForUpdate locks and returns the account's unwithdrawn events
func (r *GormCommissionRepository) ListAvailableForUpdate(ctx context.Context, accountID uuid.UUID) ([]*ledger.CommissionEvent, error) {
	var rows []models.CommissionEventModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND status = ?", accountID, string(ledger.CommissionAvailable)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ledger.CommissionEvent, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// MarkWithdrawn flips available events to withdrawn. Every id must still be
// available, otherwise ErrConcurrencyConflict is returned.
func (r *GormCommissionRepository) MarkWithdrawn(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.CommissionEventModel{}).
		Where("id IN ? AND status = ?", ids, string(ledger.CommissionAvailable)).
		Updates(map[string]any{
			"status":       string(ledger.CommissionWithdrawn),
			"withdrawn_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ ledger.CommissionRepository = (*GormCommissionRepository)(nil)
