package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// CreditOutcome is the result of a credit attempt
type CreditOutcome string

const (
	OutcomeCredited        CreditOutcome = "credited"
	OutcomeAlreadyCredited CreditOutcome = "already_credited"
)

// SignalOutcome describes what a gateway status signal did
type SignalOutcome string

const (
	SignalApplied         SignalOutcome = "applied"
	SignalUnchanged       SignalOutcome = "unchanged"
	SignalCredited        SignalOutcome = "credited"
	SignalAlreadyCredited SignalOutcome = "already_credited"
	// SignalIgnored covers signals for terminal references and out-of-order moves
	SignalIgnored SignalOutcome = "ignored"
)

// CreditCommand asks the crediting service to settle a payment reference
type CreditCommand struct {
	PaymentReferenceID uuid.UUID
	// Amount overrides the reference's sized amount when positive
	Amount decimal.Decimal
	// SettleAs is the success status to resolve into, finished by default
	SettleAs ledger.PaymentStatus
	Source   ledger.CreditSource
	// Signal carries gateway details stored alongside the credit
	Signal *ledger.GatewayStatusSignal
}

// CreditResult reports the outcome of a credit
type CreditResult struct {
	Outcome            CreditOutcome        `json:"outcome"`
	PaymentReferenceID uuid.UUID            `json:"payment_reference_id"`
	OrderID            string               `json:"order_id"`
	AccountID          uuid.UUID            `json:"account_id"`
	Amount             decimal.Decimal      `json:"amount"`
	Status             ledger.PaymentStatus `json:"status"`
}

// SignalResult reports the outcome of a gateway status signal
type SignalResult struct {
	Outcome SignalOutcome        `json:"outcome"`
	OrderID string               `json:"order_id"`
	Status  ledger.PaymentStatus `json:"status"`
}

// PaymentReferenceDTO is the read model of a payment reference
type PaymentReferenceDTO struct {
	ID                  uuid.UUID        `json:"id"`
	OrderID             string           `json:"order_id"`
	OwnerAccountID      uuid.UUID        `json:"owner_account_id"`
	GatewayPaymentID    *string          `json:"gateway_payment_id,omitempty"`
	GatewayInvoiceID    *string          `json:"gateway_invoice_id,omitempty"`
	PaymentURL          string           `json:"payment_url,omitempty"`
	PayCurrency         string           `json:"pay_currency,omitempty"`
	RequestedFiatAmount decimal.Decimal  `json:"requested_fiat_amount"`
	FiatCurrency        string           `json:"fiat_currency"`
	CreditedAssetAmount decimal.Decimal  `json:"credited_asset_amount"`
	ActuallyPaidAmount  *decimal.Decimal `json:"actually_paid_amount,omitempty"`
	NetworkFee          *decimal.Decimal `json:"network_fee,omitempty"`
	Status              string           `json:"status"`
	TxHash              *string          `json:"tx_hash,omitempty"`
	Credited            bool             `json:"credited"`
	CreditedAt          *time.Time       `json:"credited_at,omitempty"`
	LastError           string           `json:"last_error,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// ToPaymentReferenceDTO converts the aggregate
func ToPaymentReferenceDTO(p *ledger.PaymentReference) PaymentReferenceDTO {
	return PaymentReferenceDTO{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		OwnerAccountID:      p.OwnerAccountID,
		GatewayPaymentID:    p.GatewayPaymentID,
		GatewayInvoiceID:    p.GatewayInvoiceID,
		PaymentURL:          p.PaymentURL,
		PayCurrency:         p.PayCurrency,
		RequestedFiatAmount: p.RequestedFiatAmount,
		FiatCurrency:        p.FiatCurrency,
		CreditedAssetAmount: p.CreditedAssetAmount,
		ActuallyPaidAmount:  p.ActuallyPaidAmount,
		NetworkFee:          p.NetworkFee,
		Status:              p.Status.String(),
		TxHash:              p.TxHash,
		Credited:            p.Credited,
		CreditedAt:          p.CreditedAt,
		LastError:           p.LastError,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// VerificationRequestDTO is the read model of a manual verification request
type VerificationRequestDTO struct {
	ID                  uuid.UUID        `json:"id"`
	PaymentReferenceID  uuid.UUID        `json:"payment_reference_id"`
	OrderID             string           `json:"order_id"`
	AccountID           uuid.UUID        `json:"account_id"`
	TxHash              *string          `json:"tx_hash,omitempty"`
	UserMessage         string           `json:"user_message,omitempty"`
	HasProof            bool             `json:"has_proof"`
	Status              string           `json:"status"`
	AdminNotes          string           `json:"admin_notes,omitempty"`
	AdminRequestInfo    string           `json:"admin_request_info,omitempty"`
	UserResponse        string           `json:"user_response,omitempty"`
	ApprovedAssetAmount *decimal.Decimal `json:"approved_asset_amount,omitempty"`
	ReviewedBy          *uuid.UUID       `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// ToVerificationRequestDTO converts the aggregate
func ToVerificationRequestDTO(r *ledger.VerificationRequest) VerificationRequestDTO {
	return VerificationRequestDTO{
		ID:                  r.ID,
		PaymentReferenceID:  r.PaymentReferenceID,
		OrderID:             r.OrderID,
		AccountID:           r.AccountID,
		TxHash:              r.TxHash,
		UserMessage:         r.UserMessage,
		HasProof:            r.ProofObjectKey != nil,
		Status:              string(r.Status),
		AdminNotes:          r.AdminNotes,
		AdminRequestInfo:    r.AdminRequestInfo,
		UserResponse:        r.UserResponse,
		ApprovedAssetAmount: r.ApprovedAssetAmount,
		ReviewedBy:          r.ReviewedBy,
		ReviewedAt:          r.ReviewedAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// AccountDTO is the balance sheet of an account at a point in time
type AccountDTO struct {
	ID                   uuid.UUID       `json:"id"`
	PurchasedBalance     decimal.Decimal `json:"purchased_balance"`
	CommissionTotal      decimal.Decimal `json:"commission_total"`
	CommissionAvailable  decimal.Decimal `json:"commission_available"`
	CommissionWithdrawn  decimal.Decimal `json:"commission_withdrawn"`
	ChallengeBalance     decimal.Decimal `json:"challenge_balance"`
	VestingLockedBalance decimal.Decimal `json:"vesting_locked_balance"`
	AccumulatedYield     decimal.Decimal `json:"accumulated_yield"`
	UnclaimedYield       decimal.Decimal `json:"unclaimed_yield"`
	YieldRatePerMinute   decimal.Decimal `json:"yield_rate_per_minute"`
	TotalBalance         decimal.Decimal `json:"total_balance"`
	ActiveReferralCount  int             `json:"active_referral_count"`
	KYCApproved          bool            `json:"kyc_approved"`
	ReferredBy           *uuid.UUID      `json:"referred_by,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	AsOf                 time.Time       `json:"as_of"`
}

// ToAccountDTO converts the aggregate, evaluating live yield at now
func ToAccountDTO(a *ledger.Account, policy ledger.YieldPolicy, now time.Time) AccountDTO {
	return AccountDTO{
		ID:                   a.ID,
		PurchasedBalance:     a.PurchasedBalance,
		CommissionTotal:      a.Commission.Total,
		CommissionAvailable:  a.Commission.Available,
		CommissionWithdrawn:  a.Commission.Withdrawn,
		ChallengeBalance:     a.ChallengeBalance,
		VestingLockedBalance: a.VestingLockedBalance,
		AccumulatedYield:     a.AccumulatedYield,
		UnclaimedYield:       a.UnclaimedYield(now, policy),
		YieldRatePerMinute:   a.YieldRatePerMinute,
		TotalBalance:         a.TotalBalance(now, policy),
		ActiveReferralCount:  a.ActiveReferralCount,
		KYCApproved:          a.KYCApproved,
		ReferredBy:           a.ReferredBy,
		CreatedAt:            a.CreatedAt,
		AsOf:                 now,
	}
}

// YieldDTO is the live yield position of an account
type YieldDTO struct {
	AccountID         uuid.UUID       `json:"account_id"`
	Unclaimed         decimal.Decimal `json:"unclaimed"`
	Accumulated       decimal.Decimal `json:"accumulated"`
	RatePerMinute     decimal.Decimal `json:"rate_per_minute"`
	LastCheckpoint    time.Time       `json:"last_checkpoint"`
	UnmetRequirements []string        `json:"unmet_requirements,omitempty"`
	AsOf              time.Time       `json:"as_of"`
}

// ClaimResult is returned by a successful yield claim
type ClaimResult struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Claimed          decimal.Decimal `json:"claimed"`
	AccumulatedYield decimal.Decimal `json:"accumulated_yield"`
	ClaimedAt        time.Time       `json:"claimed_at"`
}

// CommissionEventDTO is the read model of a commission event
type CommissionEventDTO struct {
	ID                   uuid.UUID       `json:"id"`
	AccountID            uuid.UUID       `json:"account_id"`
	SourceAccountID      uuid.UUID       `json:"source_account_id"`
	SourceContributionID uuid.UUID       `json:"source_contribution_id"`
	Scheme               string          `json:"scheme"`
	Level                int             `json:"level"`
	Rate                 decimal.Decimal `json:"rate"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	WithdrawnAt          *time.Time      `json:"withdrawn_at,omitempty"`
}

// ToCommissionEventDTO converts a commission event
func ToCommissionEventDTO(e *ledger.CommissionEvent) CommissionEventDTO {
	return CommissionEventDTO{
		ID:                   e.ID,
		AccountID:            e.AccountID,
		SourceAccountID:      e.SourceAccountID,
		SourceContributionID: e.SourceContributionID,
		Scheme:               string(e.Scheme),
		Level:                e.Level,
		Rate:                 e.Rate,
		Amount:               e.Amount,
		Status:               string(e.Status),
		CreatedAt:            e.CreatedAt,
		WithdrawnAt:          e.WithdrawnAt,
	}
}

// VestingDTO is the read model of a vesting schedule
type VestingDTO struct {
	AccountID         uuid.UUID           `json:"account_id"`
	LockedAtStart     decimal.Decimal     `json:"locked_at_start"`
	ReleasedAmount    decimal.Decimal     `json:"released_amount"`
	WithdrawnAmount   decimal.Decimal     `json:"withdrawn_amount"`
	Withdrawable      decimal.Decimal     `json:"withdrawable"`
	ReleasePercentage decimal.Decimal     `json:"release_percentage"`
	IntervalSeconds   int64               `json:"interval_seconds"`
	NextReleaseAt     time.Time           `json:"next_release_at"`
	TicksCompleted    int                 `json:"ticks_completed"`
	Releases          []VestingReleaseDTO `json:"releases"`
}

// VestingReleaseDTO is one completed release tick
type VestingReleaseDTO struct {
	TickIndex  int             `json:"tick_index"`
	Amount     decimal.Decimal `json:"amount"`
	ReleasedAt time.Time       `json:"released_at"`
}

// ToVestingDTO converts a schedule and its releases
func ToVestingDTO(s *ledger.VestingSchedule, releases []ledger.VestingRelease) VestingDTO {
	dto := VestingDTO{
		AccountID:         s.AccountID,
		LockedAtStart:     s.LockedAtStart,
		ReleasedAmount:    s.ReleasedAmount,
		WithdrawnAmount:   s.WithdrawnAmount,
		Withdrawable:      s.Withdrawable(),
		ReleasePercentage: s.ReleasePercentage,
		IntervalSeconds:   int64(s.Interval / time.Second),
		NextReleaseAt:     s.NextReleaseAt,
		TicksCompleted:    s.TicksCompleted,
		Releases:          make([]VestingReleaseDTO, 0, len(releases)),
	}
	for _, r := range releases {
		dto.Releases = append(dto.Releases, VestingReleaseDTO{TickIndex: r.TickIndex, Amount: r.Amount, ReleasedAt: r.ReleasedAt})
	}
	return dto
}

// EligibilityDTO answers isWithdrawalEligible for one balance kind
type EligibilityDTO struct {
	AccountID         uuid.UUID `json:"account_id"`
	BalanceKind       string    `json:"balance_kind"`
	Eligible          bool      `json:"eligible"`
	UnmetRequirements []string  `json:"unmet_requirements,omitempty"`
}

// ReferralSummaryDTO counts an account's downline per level
type ReferralSummaryDTO struct {
	AccountID           uuid.UUID   `json:"account_id"`
	ActiveReferralCount int         `json:"active_referral_count"`
	Levels              map[int]int `json:"levels"`
	Direct              []uuid.UUID `json:"direct"`
}

// WithdrawalResult reports an executed withdrawal
type WithdrawalResult struct {
	AccountID   uuid.UUID       `json:"account_id"`
	BalanceKind string          `json:"balance_kind"`
	Amount      decimal.Decimal `json:"amount"`
	Entries     int             `json:"entries,omitempty"`
	At          time.Time       `json:"at"`
}

func requirementNames(reqs []ledger.Requirement) []string {
	if len(reqs) == 0 {
		return nil
	}
	names := make([]string, len(reqs))
	for i, r := range reqs {
		names[i] = string(r)
	}
	return names
}
