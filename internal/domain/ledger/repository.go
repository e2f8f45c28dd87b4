package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
)

// AccountRepository persists accounts. Save uses the aggregate version as a
// compare-and-swap guard and returns ErrConcurrencyConflict on a lost race.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// FindByIDForUpdate locks the row for the rest of the transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Save(ctx context.Context, a *Account) error
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)
}

// PaymentReferenceFilter narrows ListByAccount
type PaymentReferenceFilter struct {
	shared.Filter
	Status *PaymentStatus
}

// PaymentReferenceRepository persists payment references
type PaymentReferenceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentReference, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*PaymentReference, error)
	FindByOrderID(ctx context.Context, orderID string) (*PaymentReference, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*PaymentReference, error)
	ExistsByTxHash(ctx context.Context, txHash string, excludeID uuid.UUID) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filter PaymentReferenceFilter) (*shared.Paginated[PaymentReference], error)
	ListByStatus(ctx context.Context, status PaymentStatus, limit int) ([]PaymentReference, error)
	Create(ctx context.Context, ref *PaymentReference) error
	// Save writes the reference only if both the version and the status it
	// was loaded with are unchanged.
	Save(ctx context.Context, ref *PaymentReference, expectedStatus PaymentStatus) error
}

// VerificationRequestRepository persists manual verification requests
type VerificationRequestRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*VerificationRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*VerificationRequest, error)
	FindByPaymentReference(ctx context.Context, refID uuid.UUID) ([]VerificationRequest, error)
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	ListOpen(ctx context.Context, filter shared.Filter) (*shared.Paginated[VerificationRequest], error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[VerificationRequest], error)
	Create(ctx context.Context, r *VerificationRequest) error
	Save(ctx context.Context, r *VerificationRequest) error
}

// ReferralRepository persists referral edges
type ReferralRepository interface {
	// Upline returns the referrers of an account ordered by level
	Upline(ctx context.Context, accountID uuid.UUID) ([]ReferralEdge, error)
	// Downline returns accounts referred by an account, optionally at one level
	Downline(ctx context.Context, referrerID uuid.UUID, level int) ([]ReferralEdge, error)
	CreateEdges(ctx context.Context, edges []ReferralEdge) error
}

// CommissionRepository persists commission events
type CommissionRepository interface {
	// ExistsForContribution reports whether the waterfall already ran
	ExistsForContribution(ctx context.Context, contributionID uuid.UUID) (bool, error)
	// CreateBatch fails with ErrAlreadyExists if any (contribution, level) pair exists
	CreateBatch(ctx context.Context, events []*CommissionEvent) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[CommissionEvent], error)
	ListAvailableForUpdate(ctx context.Context, accountID uuid.UUID) ([]*CommissionEvent, error)
	MarkWithdrawn(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// VestingRepository persists schedules and their release records
type VestingRepository interface {
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*VestingSchedule, error)
	FindByAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*VestingSchedule, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]VestingSchedule, error)
	Create(ctx context.Context, s *VestingSchedule) error
	Save(ctx context.Context, s *VestingSchedule) error
	// RecordRelease fails with ErrAlreadyExists for a repeated (account, tick) pair
	RecordRelease(ctx context.Context, r VestingRelease) error
	ListReleases(ctx context.Context, accountID uuid.UUID) ([]VestingRelease, error)
}

// SettingsRepository stores global flags
type SettingsRepository interface {
	IsLaunched(ctx context.Context) (bool, error)
	SetLaunched(ctx context.Context, launched bool, by uuid.UUID) error
}
