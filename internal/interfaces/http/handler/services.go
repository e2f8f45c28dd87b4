package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/scheduler"
	"github.com/shopspring/decimal"
)

// The interfaces below list what the handlers need from the application
// services, so tests can substitute mocks.

type accountService interface {
	Register(ctx context.Context, cmd appledger.RegisterCommand) (*appledger.AccountDTO, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*appledger.AccountDTO, error)
	ListReferrals(ctx context.Context, accountID uuid.UUID) (*appledger.ReferralSummaryDTO, error)
	SetKYCApproved(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, approved bool) (*appledger.AccountDTO, error)
	SetLaunchFlag(ctx context.Context, admin ledger.AdminCapability, launched bool) error
	IsLaunched(ctx context.Context) (bool, error)
}

type paymentService interface {
	CreateInvoice(ctx context.Context, cmd appledger.CreateInvoiceCommand) (*appledger.PaymentReferenceDTO, error)
	ApplyGatewaySignal(ctx context.Context, signal ledger.GatewayStatusSignal) (*appledger.SignalResult, error)
	RefreshStatus(ctx context.Context, orderID string) (*appledger.PaymentReferenceDTO, error)
	RetryCredit(ctx context.Context, admin ledger.AdminCapability, orderID string) (*appledger.CreditResult, error)
	Get(ctx context.Context, orderID string) (*appledger.PaymentReferenceDTO, error)
	GetForAccount(ctx context.Context, accountID uuid.UUID, orderID string) (*appledger.PaymentReferenceDTO, error)
	ListPayments(ctx context.Context, accountID uuid.UUID, filter ledger.PaymentReferenceFilter) (*shared.Paginated[appledger.PaymentReferenceDTO], error)
}

type verificationService interface {
	CreateRequest(ctx context.Context, cmd appledger.CreateVerificationCommand) (*appledger.VerificationRequestDTO, error)
	StartReview(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error)
	AdminReview(ctx context.Context, admin ledger.AdminCapability, cmd appledger.ReviewCommand) (*appledger.VerificationRequestDTO, error)
	UserRespond(ctx context.Context, accountID, requestID uuid.UUID, text string) (*appledger.VerificationRequestDTO, error)
	RequestProofUpload(ctx context.Context, accountID, requestID uuid.UUID, contentType string) (*appledger.ProofUploadDTO, error)
	ProofDownloadURL(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.ProofDownloadDTO, error)
	Get(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error)
	GetForAccount(ctx context.Context, accountID, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error)
	ListOpen(ctx context.Context, admin ledger.AdminCapability, filter shared.Filter) (*shared.Paginated[appledger.VerificationRequestDTO], error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[appledger.VerificationRequestDTO], error)
}

type yieldService interface {
	GetUnclaimedYield(ctx context.Context, accountID uuid.UUID) (*appledger.YieldDTO, error)
	Claim(ctx context.Context, accountID uuid.UUID) (*appledger.ClaimResult, error)
}

type withdrawalService interface {
	IsWithdrawalEligible(ctx context.Context, accountID uuid.UUID, kind ledger.BalanceKind) (*appledger.EligibilityDTO, error)
	WithdrawCommissions(ctx context.Context, accountID uuid.UUID) (*appledger.WithdrawalResult, error)
	WithdrawVested(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*appledger.WithdrawalResult, error)
}

type vestingService interface {
	Fund(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, amount decimal.Decimal) (*appledger.VestingDTO, error)
	Get(ctx context.Context, accountID uuid.UUID) (*appledger.VestingDTO, error)
}

type commissionService interface {
	DistributeGameCommission(ctx context.Context, admin ledger.AdminCapability, cmd appledger.GameEntryCommand) ([]appledger.CommissionEventDTO, error)
	ListCommissions(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[appledger.CommissionEventDTO], error)
}

type sessionRevoker interface {
	RevokeAccount(ctx context.Context, accountID string, ttl time.Duration) error
}

type jobRunner interface {
	Trigger(ctx context.Context, name string) error
	Stats() []scheduler.JobStats
}

var (
	_ accountService      = (*appledger.AccountService)(nil)
	_ paymentService      = (*appledger.ReconciliationService)(nil)
	_ verificationService = (*appledger.VerificationService)(nil)
	_ yieldService        = (*appledger.YieldService)(nil)
	_ withdrawalService   = (*appledger.WithdrawalService)(nil)
	_ vestingService      = (*appledger.VestingService)(nil)
	_ commissionService   = (*appledger.CommissionService)(nil)
	_ jobRunner           = (*scheduler.Scheduler)(nil)
)
