package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the reconciliation state of a PaymentReference
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusWaiting    PaymentStatus = "waiting"
	PaymentStatusConfirming PaymentStatus = "confirming"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusFinished   PaymentStatus = "finished"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	// PaymentStatusCreditFailed marks a payment whose success signal arrived
	// but whose credit could not be applied. Only a success status leaves it.
	PaymentStatusCreditFailed PaymentStatus = "credit_failed"
)

var failureExits = []PaymentStatus{PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled}

// paymentTransitions is the single source of truth for allowed moves.
// Terminal states have no entry.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: append([]PaymentStatus{
		PaymentStatusWaiting, PaymentStatusConfirming, PaymentStatusConfirmed,
		PaymentStatusFinished, PaymentStatusCreditFailed,
	}, failureExits...),
	PaymentStatusWaiting: append([]PaymentStatus{
		PaymentStatusConfirming, PaymentStatusConfirmed, PaymentStatusFinished, PaymentStatusCreditFailed,
	}, failureExits...),
	PaymentStatusConfirming: append([]PaymentStatus{
		PaymentStatusConfirmed, PaymentStatusFinished, PaymentStatusCreditFailed,
	}, failureExits...),
	PaymentStatusCreditFailed: {PaymentStatusConfirmed, PaymentStatusFinished},
}

// IsValid checks if the status is a known value
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusWaiting, PaymentStatusConfirming,
		PaymentStatusConfirmed, PaymentStatusFinished, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled, PaymentStatusCreditFailed:
		return true
	}
	return false
}

// String returns the string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// IsSuccess reports a terminal success state
func (s PaymentStatus) IsSuccess() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFinished
}

// IsFailure reports a terminal failure state
func (s PaymentStatus) IsFailure() bool {
	return s == PaymentStatusFailed || s == PaymentStatusExpired || s == PaymentStatusCancelled
}

// IsTerminal reports a state no signal may leave
func (s PaymentStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// CanTransitionTo validates a move against the transition table
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ParsePaymentStatus parses a status string
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown payment status %q", s)
	}
	return status, nil
}

// PaymentReference tracks one attempted external payment from invoice to credit
type PaymentReference struct {
	shared.BaseAggregateRoot
	OrderID             string
	OwnerAccountID      uuid.UUID
	GatewayPaymentID    *string
	GatewayInvoiceID    *string
	PaymentURL          string
	PayCurrency         string
	RequestedFiatAmount decimal.Decimal
	FiatCurrency        string
	CreditedAssetAmount decimal.Decimal
	ActuallyPaidAmount  *decimal.Decimal
	NetworkFee          *decimal.Decimal
	Status              PaymentStatus
	TxHash              *string
	Credited            bool
	CreditedAt          *time.Time
	LastError           string
}

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{4,64}$`)

// NewPaymentReference creates a pending reference for a contribution
func NewPaymentReference(owner uuid.UUID, orderID string, fiatAmount decimal.Decimal, fiatCurrency, payCurrency string, assetAmount decimal.Decimal) (*PaymentReference, error) {
	if owner == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "owner account is required")
	}
	if !orderIDPattern.MatchString(orderID) {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "invalid order id %q", orderID)
	}
	if err := requirePositive(fiatAmount, "requested amount"); err != nil {
		return nil, err
	}
	if err := requirePositive(assetAmount, "asset amount"); err != nil {
		return nil, err
	}

	ref := &PaymentReference{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		OrderID:             orderID,
		OwnerAccountID:      owner,
		PayCurrency:         strings.ToLower(strings.TrimSpace(payCurrency)),
		RequestedFiatAmount: fiatAmount,
		FiatCurrency:        strings.ToLower(strings.TrimSpace(fiatCurrency)),
		CreditedAssetAmount: assetAmount,
		Status:              PaymentStatusPending,
	}
	return ref, nil
}

// IsDirectTransfer reports a payment made on-chain without a gateway invoice
func (p *PaymentReference) IsDirectTransfer() bool {
	return p.GatewayPaymentID == nil && p.GatewayInvoiceID == nil
}

// AttachInvoice stores the identifiers returned by gateway invoice creation
func (p *PaymentReference) AttachInvoice(invoiceID, paymentURL string) error {
	if p.GatewayInvoiceID != nil {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "payment %s already has an invoice", p.OrderID)
	}
	p.GatewayInvoiceID = &invoiceID
	p.PaymentURL = paymentURL
	p.IncrementVersion()
	return nil
}

// AssignGatewayPaymentID sets the gateway payment ID once. Re-assigning the
// same value is a no-op; a different value is rejected.
func (p *PaymentReference) AssignGatewayPaymentID(id string) error {
	if id == "" {
		return nil
	}
	if p.GatewayPaymentID != nil {
		if *p.GatewayPaymentID == id {
			return nil
		}
		return shared.NewDomainErrorf(shared.CodeInvalidInput,
			"payment %s is bound to gateway payment %s", p.OrderID, *p.GatewayPaymentID)
	}
	p.GatewayPaymentID = &id
	p.IncrementVersion()
	return nil
}

// RecordSettlementDetails keeps what the gateway reported as paid and
// reports whether anything changed.
func (p *PaymentReference) RecordSettlementDetails(actuallyPaid, networkFee *decimal.Decimal) bool {
	changed := false
	if actuallyPaid != nil && (p.ActuallyPaidAmount == nil || !p.ActuallyPaidAmount.Equal(*actuallyPaid)) {
		p.ActuallyPaidAmount = actuallyPaid
		changed = true
	}
	if networkFee != nil && (p.NetworkFee == nil || !p.NetworkFee.Equal(*networkFee)) {
		p.NetworkFee = networkFee
		changed = true
	}
	if changed {
		p.IncrementVersion()
	}
	return changed
}

// AttachTxHash records an on-chain proof hash. Uniqueness across references
// is checked by the caller against the store.
func (p *PaymentReference) AttachTxHash(hash string) error {
	normalized, err := NormalizeTxHash(hash)
	if err != nil {
		return err
	}
	if p.TxHash != nil {
		if *p.TxHash == normalized {
			return nil
		}
		return shared.NewDomainErrorf(shared.CodeInvalidState, "payment %s already carries a different transaction hash", p.OrderID)
	}
	p.TxHash = &normalized
	p.IncrementVersion()
	return nil
}

// TransitionTo moves the reference through the state table. Terminal
// references return ErrAlreadyTerminal; a same-state signal is a no-op
// reported as changed=false.
func (p *PaymentReference) TransitionTo(to PaymentStatus, source string) (bool, error) {
	if !to.IsValid() {
		return false, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown payment status %q", to)
	}
	if p.Status.IsTerminal() {
		return false, shared.ErrAlreadyTerminal.WithDetails(string(p.Status))
	}
	if p.Status == to {
		return false, nil
	}
	if !p.Status.CanTransitionTo(to) {
		return false, shared.NewDomainErrorf(shared.CodeInvalidState,
			"payment %s cannot move from %s to %s", p.OrderID, p.Status, to)
	}

	from := p.Status
	p.Status = to
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentStatusChangedEvent(p, from, source))
	return true, nil
}

// CreditSource identifies who is resolving a reference into a success state
type CreditSource string

const (
	CreditSourceGateway CreditSource = "gateway"
	CreditSourceAdmin   CreditSource = "admin"
	CreditSourceRetry   CreditSource = "retry"
)

// SettleAndMarkCredited resolves the reference into a success state with the
// amount actually credited. Already credited references return
// ErrAlreadyTerminal. Terminal failure states are left only by an admin,
// since no automatic signal may reopen them.
func (p *PaymentReference) SettleAndMarkCredited(status PaymentStatus, amount decimal.Decimal, source CreditSource, now time.Time) error {
	if !status.IsSuccess() {
		return shared.NewDomainErrorf(shared.CodeInvalidInput, "%s is not a success status", status)
	}
	if p.Credited || p.Status.IsSuccess() {
		return shared.ErrAlreadyTerminal.WithDetails(string(p.Status))
	}
	if err := requirePositive(amount, "credited amount"); err != nil {
		return err
	}

	if p.Status.IsFailure() {
		if source != CreditSourceAdmin {
			return shared.ErrAlreadyTerminal.WithDetails(string(p.Status))
		}
		from := p.Status
		p.Status = status
		p.AddDomainEvent(NewPaymentStatusChangedEvent(p, from, string(source)))
	} else if _, err := p.TransitionTo(status, string(source)); err != nil {
		return err
	}

	p.CreditedAssetAmount = amount
	p.Credited = true
	p.CreditedAt = &now
	p.LastError = ""
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentCreditedEvent(p))
	return nil
}

// MarkCreditFailed parks the reference in the recoverable credit_failed state
func (p *PaymentReference) MarkCreditFailed(reason string) error {
	if p.Status == PaymentStatusCreditFailed {
		p.LastError = reason
		p.IncrementVersion()
		return nil
	}
	if _, err := p.TransitionTo(PaymentStatusCreditFailed, "crediting"); err != nil {
		return err
	}
	p.LastError = reason
	return nil
}

var (
	evmTxHashPattern  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	bareTxHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// NormalizeTxHash lower-cases and validates an EVM (0x-prefixed) or bare
// 64-hex transaction hash.
func NormalizeTxHash(hash string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hash))
	if evmTxHashPattern.MatchString(h) || bareTxHashPattern.MatchString(h) {
		return h, nil
	}
	return "", shared.NewDomainErrorf(shared.CodeInvalidInput, "malformed transaction hash %q", hash)
}
