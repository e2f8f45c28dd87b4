package ledger

import (
	"context"
	"strings"

	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceRequest is sent to the payment gateway when a contribution starts
type InvoiceRequest struct {
	OrderID      string
	FiatAmount   decimal.Decimal
	FiatCurrency string
	PayCurrency  string
	Description  string
}

// Invoice is what the gateway returns for an InvoiceRequest
type Invoice struct {
	InvoiceID        string
	GatewayPaymentID string
	PaymentURL       string
}

// GatewayStatusSignal is a status report pushed by or pulled from the gateway
type GatewayStatusSignal struct {
	GatewayPaymentID string
	OrderID          string
	Status           string
	ActuallyPaid     *decimal.Decimal
	NetworkFee       *decimal.Decimal
}

// PaymentGateway is the port to the hosted crypto payment processor.
// Implementations return ErrUpstreamUnavailable on transport failures and timeouts.
type PaymentGateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (*GatewayStatusSignal, error)
}

var gatewayStatusMap = map[string]PaymentStatus{
	"waiting":        PaymentStatusWaiting,
	"partially_paid": PaymentStatusWaiting,
	"confirming":     PaymentStatusConfirming,
	"sending":        PaymentStatusConfirming,
	"confirmed":      PaymentStatusConfirmed,
	"finished":       PaymentStatusFinished,
	"failed":         PaymentStatusFailed,
	"expired":        PaymentStatusExpired,
	"refunded":       PaymentStatusCancelled,
	"cancelled":      PaymentStatusCancelled,
}

// MapGatewayStatus translates a gateway status string into a PaymentStatus
func MapGatewayStatus(status string) (PaymentStatus, error) {
	s, ok := gatewayStatusMap[strings.ToLower(strings.TrimSpace(status))]
	if !ok {
		return "", shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown gateway status %q", status)
	}
	return s, nil
}
