package persistence

import (
	"context"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Domain events recorded inside Execute land in the outbox in the same
// transaction as the aggregate changes.
type GormTransactionScope struct {
	db         *gorm.DB
	serializer *event.EventSerializer
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, serializer *event.EventSerializer) *GormTransactionScope {
	return &GormTransactionScope{db: db, serializer: serializer}
}

// Execute runs fn within a database transaction. It commits when fn returns
// nil and rolls back otherwise.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, serializer: s.serializer})
	})
}

type gormTransactionalRepositories struct {
	tx         *gorm.DB
	serializer *event.EventSerializer
}

func (r *gormTransactionalRepositories) Accounts() ledger.AccountRepository {
	return NewGormAccountRepository(r.tx)
}

func (r *gormTransactionalRepositories) Payments() ledger.PaymentReferenceRepository {
	return NewGormPaymentReferenceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Verifications() ledger.VerificationRequestRepository {
	return NewGormVerificationRequestRepository(r.tx)
}

func (r *gormTransactionalRepositories) Referrals() ledger.ReferralRepository {
	return NewGormReferralRepository(r.tx)
}

func (r *gormTransactionalRepositories) Commissions() ledger.CommissionRepository {
	return NewGormCommissionRepository(r.tx)
}

func (r *gormTransactionalRepositories) Vesting() ledger.VestingRepository {
	return NewGormVestingRepository(r.tx)
}

func (r *gormTransactionalRepositories) Settings() ledger.SettingsRepository {
	return NewGormSettingsRepository(r.tx)
}

func (r *gormTransactionalRepositories) Events() appledger.EventRecorder {
	return event.NewOutboxRecorder(r.tx, r.serializer)
}

var (
	_ appledger.TransactionScope          = (*GormTransactionScope)(nil)
	_ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
