package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// VerificationRequestModel is the persistence model for the VerificationRequest aggregate root.
type VerificationRequestModel struct {
	AggregateModel
	PaymentReferenceID  uuid.UUID        `gorm:"type:uuid;not null;index:idx_verification_requests_payment"`
	OrderID             string           `gorm:"type:varchar(64);not null"`
	AccountID           uuid.UUID        `gorm:"type:uuid;not null;index:idx_verification_requests_account"`
	TxHash              *string          `gorm:"type:varchar(128);index:idx_verification_requests_tx_hash"`
	UserMessage         string           `gorm:"type:text;not null;default:''"`
	ProofObjectKey      *string          `gorm:"type:varchar(512)"`
	Status              string           `gorm:"type:varchar(32);not null;index:idx_verification_requests_status"`
	AdminNotes          string           `gorm:"type:text;not null;default:''"`
	AdminRequestInfo    string           `gorm:"type:text;not null;default:''"`
	UserResponse        string           `gorm:"type:text;not null;default:''"`
	ApprovedAssetAmount *decimal.Decimal `gorm:"type:decimal(36,18)"`
	ReviewedBy          *uuid.UUID       `gorm:"type:uuid"`
	ReviewedAt          *time.Time
}

// TableName returns the table name for GORM
func (VerificationRequestModel) TableName() string {
	return "verification_requests"
}

// ToDomain converts the persistence model to a domain VerificationRequest
func (m *VerificationRequestModel) ToDomain() *ledger.VerificationRequest {
	return &ledger.VerificationRequest{
		BaseAggregateRoot:   m.ToAggregateRoot(),
		PaymentReferenceID:  m.PaymentReferenceID,
		OrderID:             m.OrderID,
		AccountID:           m.AccountID,
		TxHash:              m.TxHash,
		UserMessage:         m.UserMessage,
		ProofObjectKey:      m.ProofObjectKey,
		Status:              ledger.VerificationStatus(m.Status),
		AdminNotes:          m.AdminNotes,
		AdminRequestInfo:    m.AdminRequestInfo,
		UserResponse:        m.UserResponse,
		ApprovedAssetAmount: m.ApprovedAssetAmount,
		ReviewedBy:          m.ReviewedBy,
		ReviewedAt:          m.ReviewedAt,
	}
}

// VerificationRequestModelFromDomain converts a domain VerificationRequest to its persistence model
func VerificationRequestModelFromDomain(r *ledger.VerificationRequest) *VerificationRequestModel {
	m := &VerificationRequestModel{
		PaymentReferenceID:  r.PaymentReferenceID,
		OrderID:             r.OrderID,
		AccountID:           r.AccountID,
		TxHash:              r.TxHash,
		UserMessage:         r.UserMessage,
		ProofObjectKey:      r.ProofObjectKey,
		Status:              string(r.Status),
		AdminNotes:          r.AdminNotes,
		AdminRequestInfo:    r.AdminRequestInfo,
		UserResponse:        r.UserResponse,
		ApprovedAssetAmount: r.ApprovedAssetAmount,
		ReviewedBy:          r.ReviewedBy,
		ReviewedAt:          r.ReviewedAt,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// UpdateColumns lists the columns written by a compare-and-swap save
func (m *VerificationRequestModel) UpdateColumns() map[string]any {
	return map[string]any{
		"user_message":          m.UserMessage,
		"proof_object_key":      m.ProofObjectKey,
		"status":                m.Status,
		"admin_notes":           m.AdminNotes,
		"admin_request_info":    m.AdminRequestInfo,
		"user_response":         m.UserResponse,
		"approved_asset_amount": m.ApprovedAssetAmount,
		"reviewed_by":           m.ReviewedBy,
		"reviewed_at":           m.ReviewedAt,
		"version":               m.Version,
		"updated_at":            m.UpdatedAt,
	}
}
