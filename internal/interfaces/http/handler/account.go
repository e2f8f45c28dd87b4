package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appledger "github.com/mxi/presale/internal/application/ledger"
)

// AccountHandler serves the caller's account, balances and referral tree
type AccountHandler struct {
	BaseHandler
	accounts accountService
}

// NewAccountHandler creates an AccountHandler
func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterAccountRequest opens the caller's ledger account
type RegisterAccountRequest struct {
	ReferrerID string `json:"referrer_id" binding:"omitempty,uuid"`
}

// Register handles POST /accounts. The account ID is the authenticated
// subject; the optional referrer links the new account into a referral tree.
func (h *AccountHandler) Register(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req RegisterAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := appledger.RegisterCommand{AccountID: accountID}
	if req.ReferrerID != "" {
		referrer := uuid.MustParse(req.ReferrerID)
		cmd.ReferrerID = &referrer
	}
	account, err := h.accounts.Register(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, account)
}

// Me handles GET /accounts/me
func (h *AccountHandler) Me(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}

// Referrals handles GET /accounts/me/referrals
func (h *AccountHandler) Referrals(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	summary, err := h.accounts.ListReferrals(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
