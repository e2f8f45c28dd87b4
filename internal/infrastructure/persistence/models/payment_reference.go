package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// Unique index names on payment_references
const (
	IndexPaymentOrderID          = "uq_payment_references_order_id"
	IndexPaymentGatewayPaymentID = "uq_payment_references_gateway_payment_id"
	IndexPaymentTxHash           = "uq_payment_references_tx_hash"
)

// PaymentReferenceModel is the persistence model for the PaymentReference aggregate root.
type PaymentReferenceModel struct {
	AggregateModel
	OrderID             string           `gorm:"type:varchar(64);not null;uniqueIndex:uq_payment_references_order_id"`
	OwnerAccountID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_payment_references_owner,priority:1"`
	GatewayPaymentID    *string          `gorm:"type:varchar(64);uniqueIndex:uq_payment_references_gateway_payment_id"`
	GatewayInvoiceID    *string          `gorm:"type:varchar(64)"`
	PaymentURL          string           `gorm:"type:text;not null;default:''"`
	PayCurrency         string           `gorm:"type:varchar(16);not null;default:''"`
	RequestedFiatAmount decimal.Decimal  `gorm:"type:decimal(36,18);not null"`
	FiatCurrency        string           `gorm:"type:varchar(8);not null"`
	CreditedAssetAmount decimal.Decimal  `gorm:"type:decimal(36,18);not null"`
	ActuallyPaidAmount  *decimal.Decimal `gorm:"type:decimal(36,18)"`
	NetworkFee          *decimal.Decimal `gorm:"type:decimal(36,18)"`
	Status              string           `gorm:"type:varchar(24);not null;index:idx_payment_references_status_updated,priority:1"`
	TxHash              *string          `gorm:"type:varchar(128);uniqueIndex:uq_payment_references_tx_hash"`
	Credited            bool             `gorm:"not null;default:false"`
	CreditedAt          *time.Time
	LastError           string `gorm:"type:text;not null;default:''"`
}

// TableName returns the table name for GORM
func (PaymentReferenceModel) TableName() string {
	return "payment_references"
}

// ToDomain converts the persistence model to a domain PaymentReference
func (m *PaymentReferenceModel) ToDomain() *ledger.PaymentReference {
	return &ledger.PaymentReference{
		BaseAggregateRoot:   m.ToAggregateRoot(),
		OrderID:             m.OrderID,
		OwnerAccountID:      m.OwnerAccountID,
		GatewayPaymentID:    m.GatewayPaymentID,
		GatewayInvoiceID:    m.GatewayInvoiceID,
		PaymentURL:          m.PaymentURL,
		PayCurrency:         m.PayCurrency,
		RequestedFiatAmount: m.RequestedFiatAmount,
		FiatCurrency:        m.FiatCurrency,
		CreditedAssetAmount: m.CreditedAssetAmount,
		ActuallyPaidAmount:  m.ActuallyPaidAmount,
		NetworkFee:          m.NetworkFee,
		Status:              ledger.PaymentStatus(m.Status),
		TxHash:              m.TxHash,
		Credited:            m.Credited,
		CreditedAt:          m.CreditedAt,
		LastError:           m.LastError,
	}
}

// PaymentReferenceModelFromDomain converts a domain PaymentReference to its persistence model
func PaymentReferenceModelFromDomain(p *ledger.PaymentReference) *PaymentReferenceModel {
	m := &PaymentReferenceModel{
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
		Status:              string(p.Status),
		TxHash:              p.TxHash,
		Credited:            p.Credited,
		CreditedAt:          p.CreditedAt,
		LastError:           p.LastError,
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	return m
}

// UpdateColumns lists the columns written by a compare-and-swap save.
// order_id, owner and requested amounts are immutable after creation.
func (m *PaymentReferenceModel) UpdateColumns() map[string]any {
	return map[string]any{
		"gateway_payment_id":    m.GatewayPaymentID,
		"gateway_invoice_id":    m.GatewayInvoiceID,
		"payment_url":           m.PaymentURL,
		"pay_currency":          m.PayCurrency,
		"credited_asset_amount": m.CreditedAssetAmount,
		"actually_paid_amount":  m.ActuallyPaidAmount,
		"network_fee":           m.NetworkFee,
		"status":                m.Status,
		"tx_hash":               m.TxHash,
		"credited":              m.Credited,
		"credited_at":           m.CreditedAt,
		"last_error":            m.LastError,
		"version":               m.Version,
		"updated_at":            m.UpdatedAt,
	}
}
