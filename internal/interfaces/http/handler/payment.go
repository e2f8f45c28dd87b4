package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
)

// PaymentHandler serves the caller's invoices
type PaymentHandler struct {
	BaseHandler
	payments paymentService
}

// NewPaymentHandler creates a PaymentHandler
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateInvoiceRequest asks the gateway for a payment invoice
type CreateInvoiceRequest struct {
	FiatAmount   string `json:"fiat_amount" binding:"required,posdecimal"`
	FiatCurrency string `json:"fiat_currency" binding:"omitempty,currency"`
	PayCurrency  string `json:"pay_currency" binding:"omitempty,currency"`
	OrderID      string `json:"order_id" binding:"omitempty,max=64"`
}

// ListPaymentsQuery filters the caller's payments
type ListPaymentsQuery struct {
	dto.PageQuery
	Status string `form:"status"`
}

// CreateInvoice handles POST /payments
func (h *PaymentHandler) CreateInvoice(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := ledger.ParsePositiveAmount(req.FiatAmount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ref, err := h.payments.CreateInvoice(c.Request.Context(), appledger.CreateInvoiceCommand{
		AccountID:    accountID,
		OrderID:      req.OrderID,
		FiatAmount:   amount,
		FiatCurrency: req.FiatCurrency,
		PayCurrency:  req.PayCurrency,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ref)
}

// List handles GET /payments
func (h *PaymentHandler) List(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var q ListPaymentsQuery
	if !bindQuery(c, &q) {
		return
	}
	filter := ledger.PaymentReferenceFilter{Filter: q.Filter()}
	if q.Status != "" {
		status, err := ledger.ParsePaymentStatus(q.Status)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.Status = &status
	}

	page, err := h.payments.ListPayments(c.Request.Context(), accountID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /payments/:order_id
func (h *PaymentHandler) Get(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	ref, err := h.payments.GetForAccount(c.Request.Context(), accountID, orderIDParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}

// Refresh handles POST /payments/:order_id/refresh. It pulls the gateway
// status for an order the caller owns.
func (h *PaymentHandler) Refresh(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orderID := orderIDParam(c)
	if _, err := h.payments.GetForAccount(ctx, accountID, orderID); err != nil {
		h.HandleError(c, err)
		return
	}
	ref, err := h.payments.RefreshStatus(ctx, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}

func orderIDParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("order_id"))
}
