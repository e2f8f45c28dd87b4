package ledger

import (
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeAccount             = "Account"
	AggregateTypePaymentReference    = "PaymentReference"
	AggregateTypeVerificationRequest = "ManualVerificationRequest"
	AggregateTypeVestingSchedule     = "VestingSchedule"
)

// Event type constants
const (
	EventTypeAccountRegistered         = "AccountRegistered"
	EventTypeAccountBalanceChanged     = "AccountBalanceChanged"
	EventTypePaymentStatusChanged      = "PaymentStatusChanged"
	EventTypePaymentCredited           = "PaymentCredited"
	EventTypeVerificationStatusChanged = "VerificationStatusChanged"
	EventTypeVestingReleased           = "VestingReleased"
)

// Entity types used in change notices
const (
	EntityTypeAccount             = "account"
	EntityTypePaymentReference    = "payment_reference"
	EntityTypeVerificationRequest = "verification_request"
	EntityTypeVestingSchedule     = "vesting_schedule"
)

// AccountRegisteredEvent is raised when an account joins, optionally under a referrer
type AccountRegisteredEvent struct {
	shared.BaseDomainEvent
	AccountID  uuid.UUID  `json:"account_id"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
}

// NewAccountRegisteredEvent creates an AccountRegisteredEvent
func NewAccountRegisteredEvent(a *Account) *AccountRegisteredEvent {
	return &AccountRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountRegistered, AggregateTypeAccount, a.ID),
		AccountID:       a.ID,
		ReferredBy:      a.ReferredBy,
	}
}

func (e *AccountRegisteredEvent) EntityType() string { return EntityTypeAccount }
func (e *AccountRegisteredEvent) EntityID() string   { return e.AccountID.String() }
func (e *AccountRegisteredEvent) NewState() string   { return "registered" }

// AccountBalanceChangedEvent is raised on every balance mutation
type AccountBalanceChangedEvent struct {
	shared.BaseDomainEvent
	AccountID uuid.UUID       `json:"account_id"`
	Kind      BalanceKind     `json:"kind"`
	Reason    string          `json:"reason"`
	Delta     decimal.Decimal `json:"delta"`
}

// NewAccountBalanceChangedEvent creates an AccountBalanceChangedEvent
func NewAccountBalanceChangedEvent(accountID uuid.UUID, kind BalanceKind, reason string, delta decimal.Decimal) *AccountBalanceChangedEvent {
	return &AccountBalanceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountBalanceChanged, AggregateTypeAccount, accountID),
		AccountID:       accountID,
		Kind:            kind,
		Reason:          reason,
		Delta:           delta,
	}
}

func (e *AccountBalanceChangedEvent) EntityType() string { return EntityTypeAccount }
func (e *AccountBalanceChangedEvent) EntityID() string   { return e.AccountID.String() }
func (e *AccountBalanceChangedEvent) NewState() string   { return e.Reason }

// PaymentStatusChangedEvent is raised on every PaymentReference transition
type PaymentStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID string        `json:"order_id"`
	From    PaymentStatus `json:"from"`
	To      PaymentStatus `json:"to"`
	Source  string        `json:"source"`
}

// NewPaymentStatusChangedEvent creates a PaymentStatusChangedEvent
func NewPaymentStatusChangedEvent(ref *PaymentReference, from PaymentStatus, source string) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentStatusChanged, AggregateTypePaymentReference, ref.ID),
		OrderID:         ref.OrderID,
		From:            from,
		To:              ref.Status,
		Source:          source,
	}
}

func (e *PaymentStatusChangedEvent) EntityType() string { return EntityTypePaymentReference }
func (e *PaymentStatusChangedEvent) EntityID() string   { return e.OrderID }
func (e *PaymentStatusChangedEvent) NewState() string   { return string(e.To) }

// PaymentCreditedEvent is raised once per PaymentReference when its
// contribution lands in the owner's purchased balance. Subscribers use the
// reference ID as the contribution ID for the commission waterfall.
type PaymentCreditedEvent struct {
	shared.BaseDomainEvent
	PaymentReferenceID uuid.UUID       `json:"payment_reference_id"`
	OrderID            string          `json:"order_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	Amount             decimal.Decimal `json:"amount"`
}

// NewPaymentCreditedEvent creates a PaymentCreditedEvent
func NewPaymentCreditedEvent(ref *PaymentReference) *PaymentCreditedEvent {
	return &PaymentCreditedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypePaymentCredited, AggregateTypePaymentReference, ref.ID),
		PaymentReferenceID: ref.ID,
		OrderID:            ref.OrderID,
		AccountID:          ref.OwnerAccountID,
		Amount:             ref.CreditedAssetAmount,
	}
}

func (e *PaymentCreditedEvent) EntityType() string { return EntityTypePaymentReference }
func (e *PaymentCreditedEvent) EntityID() string   { return e.OrderID }
func (e *PaymentCreditedEvent) NewState() string   { return "credited" }

// VerificationStatusChangedEvent is raised on every manual verification transition
type VerificationStatusChangedEvent struct {
	shared.BaseDomainEvent
	RequestID uuid.UUID          `json:"request_id"`
	From      VerificationStatus `json:"from"`
	To        VerificationStatus `json:"to"`
}

// NewVerificationStatusChangedEvent creates a VerificationStatusChangedEvent
func NewVerificationStatusChangedEvent(r *VerificationRequest, from VerificationStatus) *VerificationStatusChangedEvent {
	return &VerificationStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVerificationStatusChanged, AggregateTypeVerificationRequest, r.ID),
		RequestID:       r.ID,
		From:            from,
		To:              r.Status,
	}
}

func (e *VerificationStatusChangedEvent) EntityType() string { return EntityTypeVerificationRequest }
func (e *VerificationStatusChangedEvent) EntityID() string   { return e.RequestID.String() }
func (e *VerificationStatusChangedEvent) NewState() string   { return string(e.To) }

// VestingReleasedEvent is raised when a release tick completes
type VestingReleasedEvent struct {
	shared.BaseDomainEvent
	AccountID uuid.UUID       `json:"account_id"`
	TickIndex int             `json:"tick_index"`
	Amount    decimal.Decimal `json:"amount"`
	Released  decimal.Decimal `json:"released_total"`
}

// NewVestingReleasedEvent creates a VestingReleasedEvent
func NewVestingReleasedEvent(s *VestingSchedule, release VestingRelease) *VestingReleasedEvent {
	return &VestingReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVestingReleased, AggregateTypeVestingSchedule, s.ID),
		AccountID:       s.AccountID,
		TickIndex:       release.TickIndex,
		Amount:          release.Amount,
		Released:        s.ReleasedAmount,
	}
}

func (e *VestingReleasedEvent) EntityType() string { return EntityTypeVestingSchedule }
func (e *VestingReleasedEvent) EntityID() string   { return e.AccountID.String() }
func (e *VestingReleasedEvent) NewState() string   { return "released" }
