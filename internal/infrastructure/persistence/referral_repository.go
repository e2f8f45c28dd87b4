package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReferralRepository implements ReferralRepository using GORM
type GormReferralRepository struct {
	db *gorm.DB
}

// NewGormReferralRepository creates a new GormReferralRepository
func NewGormReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// Upline returns the referrers of an account ordered by level
func (r *GormReferralRepository) Upline(ctx context.Context, accountID uuid.UUID) ([]ledger.ReferralEdge, error) {
	var rows []models.ReferralEdgeModel
	if err := r.db.WithContext(ctx).
		Where("referred_id = ?", accountID).
		Order("level ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return edgesToDomain(rows), nil
}

// Downline returns accounts referred by referrerID; level 0 means every level
func (r *GormReferralRepository) Downline(ctx context.Context, referrerID uuid.UUID, level int) ([]ledger.ReferralEdge, error) {
	q := r.db.WithContext(ctx).Where("referrer_id = ?", referrerID)
	if level > 0 {
		q = q.Where("level = ?", level)
	}
	var rows []models.ReferralEdgeModel
	if err := q.Order("level ASC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return edgesToDomain(rows), nil
}

// CreateEdges inserts the upline edges of a newly registered account
func (r *GormReferralRepository) CreateEdges(ctx context.Context, edges []ledger.ReferralEdge) error {
	if len(edges) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.ReferralEdgeModel, len(edges))
	for i, e := range edges {
		rows[i] = models.ReferralEdgeModelFromDomain(e, now)
	}
	return translateWriteError(r.db.WithContext(ctx).Create(&rows).Error)
}

func edgesToDomain(rows []models.ReferralEdgeModel) []ledger.ReferralEdge {
	out := make([]ledger.ReferralEdge, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ ledger.ReferralRepository = (*GormReferralRepository)(nil)
