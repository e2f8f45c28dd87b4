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

var paymentUniqueRules = []uniqueRule{
	{index: models.IndexPaymentOrderID, columns: "payment_references.order_id", target: shared.ErrAlreadyExists},
	{index: models.IndexPaymentGatewayPaymentID, columns: "payment_references.gateway_payment_id", target: shared.ErrAlreadyExists},
	{index: models.IndexPaymentTxHash, columns: "payment_references.tx_hash", target: shared.ErrDuplicateProof},
}

// GormPaymentReferenceRepository implements PaymentReferenceRepository using GORM
type GormPaymentReferenceRepository struct {
	db *gorm.DB
}

// NewGormPaymentReferenceRepository creates a new GormPaymentReferenceRepository
func NewGormPaymentReferenceRepository(db *gorm.DB) *GormPaymentReferenceRepository {
	return &GormPaymentReferenceRepository{db: db}
}

func (r *GormPaymentReferenceRepository) findOne(q *gorm.DB, query string, args ...any) (*ledger.PaymentReference, error) {
	var m models.PaymentReferenceModel
	if err := q.Where(query, args...).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.ToDomain(), nil
}

// FindByID finds a payment reference by ID
func (r *GormPaymentReferenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.PaymentReference, error) {
	return r.findOne(r.db.WithContext(ctx), "id = ?", id)
}

// FindByIDForUpdate finds a payment reference and locks its row
func (r *GormPaymentReferenceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.PaymentReference, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

// FindByOrderID finds a payment reference by its order ID
func (r *GormPaymentReferenceRepository) FindByOrderID(ctx context.Context, orderID string) (*ledger.PaymentReference, error) {
	return r.findOne(r.db.WithContext(ctx), "order_id = ?", orderID)
}

// FindByGatewayPaymentID finds a payment reference by the gateway's payment ID
func (r *GormPaymentReferenceRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*ledger.PaymentReference, error) {
	return r.findOne(r.db.WithContext(ctx), "gateway_payment_id = ?", gatewayPaymentID)
}

// ExistsByTxHash reports whether another reference already carries the hash
func (r *GormPaymentReferenceRepository) ExistsByTxHash(ctx context.Context, txHash string, excludeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentReferenceModel{}).
		Where("tx_hash = ? AND id <> ?", txHash, excludeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByAccount lists an account's references, newest first
func (r *GormPaymentReferenceRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter ledger.PaymentReferenceFilter) (*shared.Paginated[ledger.PaymentReference], error) {
	f := filter.Filter.Normalize()
	q := r.db.WithContext(ctx).Model(&models.PaymentReferenceModel{}).Where("owner_account_id = ?", accountID)
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.PaymentReferenceModel
	if err := q.Order("created_at DESC").Offset(f.Offset()).Limit(f.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]ledger.PaymentReference, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// ListByStatus returns up to limit references in a status, least recently updated first
func (r *GormPaymentReferenceRepository) ListByStatus(ctx context.Context, status ledger.PaymentStatus, limit int) ([]ledger.PaymentReference, error) {
	var rows []models.PaymentReferenceModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]ledger.PaymentReference, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items, nil
}

// Create inserts a new payment reference. A duplicate order ID returns
// ErrAlreadyExists and a reused transaction hash ErrDuplicateProof.
func (r *GormPaymentReferenceRepository) Create(ctx context.Context, ref *ledger.PaymentReference) error {
	m := models.PaymentReferenceModelFromDomain(ref)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateWriteError(err, paymentUniqueRules...)
	}
	ref.MarkPersisted()
	return nil
}

// Save writes the reference only if the stored version and status still
// match what the caller loaded.
func (r *GormPaymentReferenceRepository) Save(ctx context.Context, ref *ledger.PaymentReference, expectedStatus ledger.PaymentStatus) error {
	m := models.PaymentReferenceModelFromDomain(ref)
	result := r.db.WithContext(ctx).
		Model(&models.PaymentReferenceModel{}).
		Where("id = ? AND version = ? AND status = ?", ref.ID, ref.PersistedVersion(), string(expectedStatus)).
		Updates(m.UpdateColumns())
	if result.Error != nil {
		return translateWriteError(result.Error, paymentUniqueRules...)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	ref.MarkPersisted()
	return nil
}

var _ ledger.PaymentReferenceRepository = (*GormPaymentReferenceRepository)(nil)
