package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
)

// WithdrawalHandler serves eligibility, withdrawals, vesting and
// commission history
type WithdrawalHandler struct {
	BaseHandler
	withdrawals withdrawalService
	vesting     vestingService
	commissions commissionService
}

// NewWithdrawalHandler creates a WithdrawalHandler
func NewWithdrawalHandler(withdrawals withdrawalService, vesting vestingService, commissions commissionService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, vesting: vesting, commissions: commissions}
}

// WithdrawVestedRequest withdraws part of the released vesting balance
type WithdrawVestedRequest struct {
	Amount string `json:"amount" binding:"required,posdecimal"`
}

// Eligibility handles GET /eligibility/:kind
func (h *WithdrawalHandler) Eligibility(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	kind, err := ledger.ParseBalanceKind(c.Param("kind"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.withdrawals.IsWithdrawalEligible(c.Request.Context(), accountID, kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// WithdrawCommissions handles POST /withdrawals/commissions
func (h *WithdrawalHandler) WithdrawCommissions(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	result, err := h.withdrawals.WithdrawCommissions(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// WithdrawVested handles POST /withdrawals/vesting
func (h *WithdrawalHandler) WithdrawVested(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req WithdrawVestedRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := ledger.ParsePositiveAmount(req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.withdrawals.WithdrawVested(c.Request.Context(), accountID, amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Vesting handles GET /vesting
func (h *WithdrawalHandler) Vesting(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	schedule, err := h.vesting.Get(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, schedule)
}

// Commissions handles GET /commissions
func (h *WithdrawalHandler) Commissions(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.commissions.ListCommissions(c.Request.Context(), accountID, q.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}
