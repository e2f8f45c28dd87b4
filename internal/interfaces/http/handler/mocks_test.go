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
	"github.com/stretchr/testify/mock"
)

// MockAccountService implements accountService for testing
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, cmd appledger.RegisterCommand) (*appledger.AccountDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.AccountDTO), args.Error(1)
}

func (m *MockAccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*appledger.AccountDTO, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.AccountDTO), args.Error(1)
}

func (m *MockAccountService) ListReferrals(ctx context.Context, accountID uuid.UUID) (*appledger.ReferralSummaryDTO, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.ReferralSummaryDTO), args.Error(1)
}

func (m *MockAccountService) SetKYCApproved(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, approved bool) (*appledger.AccountDTO, error) {
	args := m.Called(ctx, admin, accountID, approved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.AccountDTO), args.Error(1)
}

func (m *MockAccountService) SetLaunchFlag(ctx context.Context, admin ledger.AdminCapability, launched bool) error {
	return m.Called(ctx, admin, launched).Error(0)
}

func (m *MockAccountService) IsLaunched(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MockPaymentService implements paymentService for testing
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateInvoice(ctx context.Context, cmd appledger.CreateInvoiceCommand) (*appledger.PaymentReferenceDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PaymentReferenceDTO), args.Error(1)
}

func (m *MockPaymentService) ApplyGatewaySignal(ctx context.Context, signal ledger.GatewayStatusSignal) (*appledger.SignalResult, error) {
	args := m.Called(ctx, signal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.SignalResult), args.Error(1)
}

func (m *MockPaymentService) RefreshStatus(ctx context.Context, orderID string) (*appledger.PaymentReferenceDTO, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PaymentReferenceDTO), args.Error(1)
}

func (m *MockPaymentService) RetryCredit(ctx context.Context, admin ledger.AdminCapability, orderID string) (*appledger.CreditResult, error) {
	args := m.Called(ctx, admin, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.CreditResult), args.Error(1)
}

func (m *MockPaymentService) Get(ctx context.Context, orderID string) (*appledger.PaymentReferenceDTO, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PaymentReferenceDTO), args.Error(1)
}

func (m *MockPaymentService) GetForAccount(ctx context.Context, accountID uuid.UUID, orderID string) (*appledger.PaymentReferenceDTO, error) {
	args := m.Called(ctx, accountID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PaymentReferenceDTO), args.Error(1)
}

func (m *MockPaymentService) ListPayments(ctx context.Context, accountID uuid.UUID, filter ledger.PaymentReferenceFilter) (*shared.Paginated[appledger.PaymentReferenceDTO], error) {
	args := m.Called(ctx, accountID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[appledger.PaymentReferenceDTO]), args.Error(1)
}

// MockVerificationService implements verificationService for testing
type MockVerificationService struct {
	mock.Mock
}

func (m *MockVerificationService) result(args mock.Arguments) (*appledger.VerificationRequestDTO, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VerificationRequestDTO), args.Error(1)
}

func (m *MockVerificationService) CreateRequest(ctx context.Context, cmd appledger.CreateVerificationCommand) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, cmd))
}

func (m *MockVerificationService) StartReview(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, admin, requestID))
}

func (m *MockVerificationService) AdminReview(ctx context.Context, admin ledger.AdminCapability, cmd appledger.ReviewCommand) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, admin, cmd))
}

func (m *MockVerificationService) UserRespond(ctx context.Context, accountID, requestID uuid.UUID, text string) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, accountID, requestID, text))
}

func (m *MockVerificationService) RequestProofUpload(ctx context.Context, accountID, requestID uuid.UUID, contentType string) (*appledger.ProofUploadDTO, error) {
	args := m.Called(ctx, accountID, requestID, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.ProofUploadDTO), args.Error(1)
}

func (m *MockVerificationService) ProofDownloadURL(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.ProofDownloadDTO, error) {
	args := m.Called(ctx, admin, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.ProofDownloadDTO), args.Error(1)
}

func (m *MockVerificationService) Get(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, admin, requestID))
}

func (m *MockVerificationService) GetForAccount(ctx context.Context, accountID, requestID uuid.UUID) (*appledger.VerificationRequestDTO, error) {
	return m.result(m.Called(ctx, accountID, requestID))
}

func (m *MockVerificationService) ListOpen(ctx context.Context, admin ledger.AdminCapability, filter shared.Filter) (*shared.Paginated[appledger.VerificationRequestDTO], error) {
	args := m.Called(ctx, admin, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[appledger.VerificationRequestDTO]), args.Error(1)
}

func (m *MockVerificationService) ListForAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[appledger.VerificationRequestDTO], error) {
	args := m.Called(ctx, accountID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[appledger.VerificationRequestDTO]), args.Error(1)
}

// MockYieldService implements yieldService for testing
type MockYieldService struct {
	mock.Mock
}

func (m *MockYieldService) GetUnclaimedYield(ctx context.Context, accountID uuid.UUID) (*appledger.YieldDTO, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.YieldDTO), args.Error(1)
}

func (m *MockYieldService) Claim(ctx context.Context, accountID uuid.UUID) (*appledger.ClaimResult, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.ClaimResult), args.Error(1)
}

// MockWithdrawalService implements withdrawalService for testing
type MockWithdrawalService struct {
	mock.Mock
}

func (m *MockWithdrawalService) IsWithdrawalEligible(ctx context.Context, accountID uuid.UUID, kind ledger.BalanceKind) (*appledger.EligibilityDTO, error) {
	args := m.Called(ctx, accountID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.EligibilityDTO), args.Error(1)
}

func (m *MockWithdrawalService) WithdrawCommissions(ctx context.Context, accountID uuid.UUID) (*appledger.WithdrawalResult, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.WithdrawalResult), args.Error(1)
}

func (m *MockWithdrawalService) WithdrawVested(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*appledger.WithdrawalResult, error) {
	args := m.Called(ctx, accountID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.WithdrawalResult), args.Error(1)
}

// MockVestingService implements vestingService for testing
type MockVestingService struct {
	mock.Mock
}

func (m *MockVestingService) Fund(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, amount decimal.Decimal) (*appledger.VestingDTO, error) {
	args := m.Called(ctx, admin, accountID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VestingDTO), args.Error(1)
}

func (m *MockVestingService) Get(ctx context.Context, accountID uuid.UUID) (*appledger.VestingDTO, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VestingDTO), args.Error(1)
}

// MockCommissionService implements commissionService for testing
type MockCommissionService struct {
	mock.Mock
}

func (m *MockCommissionService) DistributeGameCommission(ctx context.Context, admin ledger.AdminCapability, cmd appledger.GameEntryCommand) ([]appledger.CommissionEventDTO, error) {
	args := m.Called(ctx, admin, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appledger.CommissionEventDTO), args.Error(1)
}

func (m *MockCommissionService) ListCommissions(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[appledger.CommissionEventDTO], error) {
	args := m.Called(ctx, accountID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[appledger.CommissionEventDTO]), args.Error(1)
}

// MockSessionRevoker implements sessionRevoker for testing
type MockSessionRevoker struct {
	mock.Mock
}

func (m *MockSessionRevoker) RevokeAccount(ctx context.Context, accountID string, ttl time.Duration) error {
	return m.Called(ctx, accountID, ttl).Error(0)
}

// MockJobRunner implements jobRunner for testing
type MockJobRunner struct {
	mock.Mock
}

func (m *MockJobRunner) Trigger(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockJobRunner) Stats() []scheduler.JobStats {
	return m.Called().Get(0).([]scheduler.JobStats)
}

// MockSignalVerifier implements signalVerifier for testing
type MockSignalVerifier struct {
	mock.Mock
}

func (m *MockSignalVerifier) Verify(body []byte, signature string) (*ledger.GatewayStatusSignal, error) {
	args := m.Called(body, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.GatewayStatusSignal), args.Error(1)
}
