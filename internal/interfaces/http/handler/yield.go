package handler

import "github.com/gin-gonic/gin"

// YieldHandler serves yield accrual and claims
type YieldHandler struct {
	BaseHandler
	yield yieldService
}

// NewYieldHandler creates a YieldHandler
func NewYieldHandler(yield yieldService) *YieldHandler {
	return &YieldHandler{yield: yield}
}

// Get handles GET /yield
func (h *YieldHandler) Get(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	y, err := h.yield.GetUnclaimedYield(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, y)
}

// Claim handles POST /yield/claim. Unmet requirements answer 422 with the
// missing conditions as reasons.
func (h *YieldHandler) Claim(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	result, err := h.yield.Claim(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
