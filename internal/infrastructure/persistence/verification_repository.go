package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var openVerificationStatuses = []string{
	string(ledger.VerificationPending),
	string(ledger.VerificationReviewing),
	string(ledger.VerificationMoreInfoRequested),
}

// GormVerificationRequestRepository implements VerificationRequestRepository using GORM
type GormVerificationRequestRepository struct {
	db *gorm.DB
}

// NewGormVerificationRequestRepository creates a new GormVerificationRequestRepository
func NewGormVerificationRequestRepository(db *gorm.DB) *GormVerificationRequestRepository {
	return &GormVerificationRequestRepository{db: db}
}

func (r *GormVerificationRequestRepository) find(q *gorm.DB, id uuid.UUID) (*ledger.VerificationRequest, error) {
	var m models.VerificationRequestModel
	if err := q.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return m.ToDomain(), nil
}

// FindByID finds a verification request by ID
func (r *GormVerificationRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.VerificationRequest, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a verification request and locks its row
func (r *GormVerificationRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.VerificationRequest, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// FindByPaymentReference lists every request filed against a reference, oldest first
func (r *GormVerificationRequestRepository) FindByPaymentReference(ctx context.Context, refID uuid.UUID) ([]ledger.VerificationRequest, error) {
	var rows []models.VerificationRequestModel
	if err := r.db.WithContext(ctx).
		Where("payment_reference_id = ?", refID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return verificationsToDomain(rows), nil
}

// ExistsByTxHash reports whether any request was filed with the hash
func (r *GormVerificationRequestRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.VerificationRequestModel{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListOpen lists requests awaiting a decision, oldest first
func (r *GormVerificationRequestRepository) ListOpen(ctx context.Context, filter shared.Filter) (*shared.Paginated[ledger.VerificationRequest], error) {
	q := r.db.WithContext(ctx).Model(&models.VerificationRequestModel{}).
		Where("status IN ?", openVerificationStatuses)
	return r.page(q, filter, "created_at ASC")
}

// ListByAccount lists an account's requests, newest first
func (r *GormVerificationRequestRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[ledger.VerificationRequest], error) {
	q := r.db.WithContext(ctx).Model(&models.VerificationRequestModel{}).
		Where("account_id = ?", accountID)
	return r.page(q, filter, "created_at DESC")
}

func (r *GormVerificationRequestRepository) page(q *gorm.DB, filter shared.Filter, order string) (*shared.Paginated[ledger.VerificationRequest], error) {
	f := filter.Normalize()
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.VerificationRequestModel
	if err := q.Order(order).Offset(f.Offset()).Limit(f.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}
	page := shared.NewPaginated(verificationsToDomain(rows), total, f.Page, f.PageSize)
	return &page, nil
}

// Create inserts a new verification request
func (r *GormVerificationRequestRepository) Create(ctx context.Context, req *ledger.VerificationRequest) error {
	if err := r.db.WithContext(ctx).Create(models.VerificationRequestModelFromDomain(req)).Error; err != nil {
		return translateWriteError(err)
	}
	req.MarkPersisted()
	return nil
}

// Save writes the request if its version is unchanged since it was loaded
func (r *GormVerificationRequestRepository) Save(ctx context.Context, req *ledger.VerificationRequest) error {
	m := models.VerificationRequestModelFromDomain(req)
	result := r.db.WithContext(ctx).
		Model(&models.VerificationRequestModel{}).
		Where("id = ? AND version = ?", req.ID, req.PersistedVersion()).
		Updates(m.UpdateColumns())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	req.MarkPersisted()
	return nil
}

func verificationsToDomain(rows []models.VerificationRequestModel) []ledger.VerificationRequest {
	items := make([]ledger.VerificationRequest, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items
}

var _ ledger.VerificationRequestRepository = (*GormVerificationRequestRepository)(nil)
