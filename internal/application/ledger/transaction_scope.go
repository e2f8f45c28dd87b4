package ledger

import (
	"context"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
)

// TransactionScope provides transactional access to ledger repositories.
// Every repository returned inside Execute shares one database transaction
// that commits when fn returns nil and rolls back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
type TransactionalRepositories interface {
	Accounts() ledger.AccountRepository
	Payments() ledger.PaymentReferenceRepository
	Verifications() ledger.VerificationRequestRepository
	Referrals() ledger.ReferralRepository
	Commissions() ledger.CommissionRepository
	Vesting() ledger.VestingRepository
	Settings() ledger.SettingsRepository
	// Events stores domain events in the outbox as part of the transaction
	Events() EventRecorder
}

// EventRecorder persists domain events atomically with aggregate changes
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
}

// recordAll flushes the pending events of every aggregate into the recorder
func recordAll(ctx context.Context, repos TransactionalRepositories, aggregates ...shared.AggregateRoot) error {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		if agg == nil {
			continue
		}
		events = append(events, agg.GetDomainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}
	return repos.Events().Record(ctx, events...)
}
