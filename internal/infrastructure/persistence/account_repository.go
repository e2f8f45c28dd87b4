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

// GormAccountRepository implements AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByID finds an account by ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds an account and holds its row lock until the transaction ends
func (r *GormAccountRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormAccountRepository) find(q *gorm.DB, id uuid.UUID) (*ledger.Account, error) {
	var m models.AccountModel
	if err := q.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return m.ToDomain(), nil
}

// Create inserts a new account
func (r *GormAccountRepository) Create(ctx context.Context, a *ledger.Account) error {
	m := models.AccountModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return translateWriteError(err)
	}
	a.MarkPersisted()
	return nil
}

// Save writes the account if nobody else saved it since it was loaded
func (r *GormAccountRepository) Save(ctx context.Context, a *ledger.Account) error {
	m := models.AccountModelFromDomain(a)
	result := r.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("id = ? AND version = ?", a.ID, a.PersistedVersion()).
		Updates(m.UpdateColumns())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	a.MarkPersisted()
	return nil
}

// ExistsByID checks whether an account exists
func (r *GormAccountRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AccountModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ ledger.AccountRepository = (*GormAccountRepository)(nil)
