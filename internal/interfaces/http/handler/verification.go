package handler

import (
	"github.com/gin-gonic/gin"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
)

// VerificationHandler serves the investor side of manual payment
// verification
type VerificationHandler struct {
	BaseHandler
	verifications verificationService
}

// NewVerificationHandler creates a VerificationHandler
func NewVerificationHandler(verifications verificationService) *VerificationHandler {
	return &VerificationHandler{verifications: verifications}
}

// CreateVerificationRequest escalates an unconfirmed order. TxHash is left
// out for hosted-gateway orders.
type CreateVerificationRequest struct {
	OrderID string `json:"order_id" binding:"required,max=64"`
	TxHash  string `json:"tx_hash" binding:"omitempty,txhash"`
	Message string `json:"message" binding:"max=2000"`
}

// RespondRequest answers an administrator's question
type RespondRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

// ProofUploadRequest announces the screenshot about to be uploaded
type ProofUploadRequest struct {
	ContentType string `json:"content_type" binding:"required,oneof=image/png image/jpeg image/webp"`
}

// Create handles POST /verifications
func (h *VerificationHandler) Create(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req CreateVerificationRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.verifications.CreateRequest(c.Request.Context(), appledger.CreateVerificationCommand{
		AccountID: accountID,
		OrderID:   req.OrderID,
		TxHash:    req.TxHash,
		Message:   req.Message,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// List handles GET /verifications
func (h *VerificationHandler) List(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.verifications.ListForAccount(c.Request.Context(), accountID, q.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /verifications/:id
func (h *VerificationHandler) Get(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	req, err := h.verifications.GetForAccount(c.Request.Context(), accountID, requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// Respond handles POST /verifications/:id/responses
func (h *VerificationHandler) Respond(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req RespondRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.verifications.UserRespond(c.Request.Context(), accountID, requestID, req.Message)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}

// RequestProofUpload handles POST /verifications/:id/proof and returns a
// presigned upload URL
func (h *VerificationHandler) RequestProofUpload(c *gin.Context) {
	accountID, ok := h.currentAccount(c)
	if !ok {
		return
	}
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req ProofUploadRequest
	if !bindJSON(c, &req) {
		return
	}
	upload, err := h.verifications.RequestProofUpload(c.Request.Context(), accountID, requestID, req.ContentType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, upload)
}
