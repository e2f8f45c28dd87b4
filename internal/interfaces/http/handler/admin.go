package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/infrastructure/scheduler"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// AdminHandler serves the operator endpoints. Every route sits behind
// middleware.RequireAdmin, which stores the capability passed to the
// services.
type AdminHandler struct {
	BaseHandler
	accounts      accountService
	payments      paymentService
	verifications verificationService
	vesting       vestingService
	commissions   commissionService
	sessions      sessionRevoker
	sessionTTL    time.Duration
	jobs          jobRunner
}

// AdminHandlerConfig wires the AdminHandler. Sessions and Jobs are optional.
type AdminHandlerConfig struct {
	Accounts      accountService
	Payments      paymentService
	Verifications verificationService
	Vesting       vestingService
	Commissions   commissionService
	Sessions      sessionRevoker
	// SessionTTL bounds how long a revocation is remembered; use the access
	// token lifetime
	SessionTTL time.Duration
	Jobs       jobRunner
}

// NewAdminHandler creates an AdminHandler
func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	return &AdminHandler{
		accounts:      cfg.Accounts,
		payments:      cfg.Payments,
		verifications: cfg.Verifications,
		vesting:       cfg.Vesting,
		commissions:   cfg.Commissions,
		sessions:      cfg.Sessions,
		sessionTTL:    cfg.SessionTTL,
		jobs:          cfg.Jobs,
	}
}

// SetKYCRequest sets an account's KYC approval
type SetKYCRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// SetLaunchRequest flips the global launch flag
type SetLaunchRequest struct {
	Launched *bool `json:"launched" binding:"required"`
}

// AmountRequest carries a positive MXI amount
type AmountRequest struct {
	Amount string `json:"amount" binding:"required,posdecimal"`
}

// ReviewRequest is an administrator's decision on a verification request
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject request_more_info"`
	Amount   string `json:"amount" binding:"omitempty,posdecimal"`
	Notes    string `json:"notes" binding:"max=2000"`
}

// GameCommissionRequest books the commissions of a game entry
type GameCommissionRequest struct {
	EntryID   string `json:"entry_id" binding:"required,uuid"`
	AccountID string `json:"account_id" binding:"required,uuid"`
	Amount    string `json:"amount" binding:"required,posdecimal"`
}

// SetKYC handles PUT /admin/accounts/:id/kyc
func (h *AdminHandler) SetKYC(c *gin.Context) {
	accountID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req SetKYCRequest
	if !bindJSON(c, &req) {
		return
	}
	account, err := h.accounts.SetKYCApproved(c.Request.Context(), middleware.GetAdminCapability(c), accountID, *req.Approved)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}

// GetLaunch handles GET /admin/launch
func (h *AdminHandler) GetLaunch(c *gin.Context) {
	launched, err := h.accounts.IsLaunched(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"launched": launched})
}

// SetLaunch handles PUT /admin/launch
func (h *AdminHandler) SetLaunch(c *gin.Context) {
	var req SetLaunchRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.SetLaunchFlag(c.Request.Context(), middleware.GetAdminCapability(c), *req.Launched); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"launched": *req.Launched})
}

// FundVesting handles POST /admin/accounts/:id/vesting
func (h *AdminHandler) FundVesting(c *gin.Context) {
	accountID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req AmountRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := ledger.ParsePositiveAmount(req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	schedule, err := h.vesting.Fund(c.Request.Context(), middleware.GetAdminCapability(c), accountID, amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, schedule)
}

// RevokeSessions handles POST /admin/accounts/:id/sessions/revoke. Tokens
// issued before the call stop authenticating.
func (h *AdminHandler) RevokeSessions(c *gin.Context) {
	accountID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if h.sessions == nil {
		h.Error(c, http.StatusNotImplemented, dto.ErrCodeInvalidState, "Session revocation is not configured")
		return
	}
	if err := h.sessions.RevokeAccount(c.Request.Context(), accountID.String(), h.sessionTTL); err != nil {
		h.HandleError(c, err)
		return
	}
	logger.FromGin(c).Info("Account sessions revoked",
		zap.String("target_account_id", accountID.String()),
		zap.String("admin_id", middleware.GetAdminCapability(c).AdminID().String()),
	)
	h.NoContent(c)
}

// GetPayment handles GET /admin/payments/:order_id
func (h *AdminHandler) GetPayment(c *gin.Context) {
	ref, err := h.payments.Get(c.Request.Context(), orderIDParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}

// RefreshPayment handles POST /admin/payments/:order_id/refresh
func (h *AdminHandler) RefreshPayment(c *gin.Context) {
	ref, err := h.payments.RefreshStatus(c.Request.Context(), orderIDParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}

// RetryCredit handles POST /admin/payments/:order_id/retry-credit
func (h *AdminHandler) RetryCredit(c *gin.Context) {
	result, err := h.payments.RetryCredit(c.Request.Context(), middleware.GetAdminCapability(c), orderIDParam(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListVerifications handles GET /admin/verifications
func (h *AdminHandler) ListVerifications(c *gin.Context) {
	var q dto.PageQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.verifications.ListOpen(c.Request.Context(), middleware.GetAdminCapability(c), q.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// GetVerification handles GET /admin/verifications/:id
func (h *AdminHandler) GetVerification(c *gin.Context) {
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	req, err := h.verifications.Get(c.Request.Context(), middleware.GetAdminCapability(c), requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// StartReview handles POST /admin/verifications/:id/start
func (h *AdminHandler) StartReview(c *gin.Context) {
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	req, err := h.verifications.StartReview(c.Request.Context(), middleware.GetAdminCapability(c), requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, req)
}

// Review handles POST /admin/verifications/:id/review
func (h *AdminHandler) Review(c *gin.Context) {
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	decision, err := ledger.ParseReviewDecision(req.Decision)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	cmd := appledger.ReviewCommand{RequestID: requestID, Decision: decision, Notes: req.Notes}
	if req.Amount != "" {
		if cmd.Amount, err = ledger.ParsePositiveAmount(req.Amount); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	reviewed, err := h.verifications.AdminReview(c.Request.Context(), middleware.GetAdminCapability(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, reviewed)
}

// ProofDownload handles GET /admin/verifications/:id/proof
func (h *AdminHandler) ProofDownload(c *gin.Context) {
	requestID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	link, err := h.verifications.ProofDownloadURL(c.Request.Context(), middleware.GetAdminCapability(c), requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}

// GameCommission handles POST /admin/game-commissions
func (h *AdminHandler) GameCommission(c *gin.Context) {
	var req GameCommissionRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := ledger.ParsePositiveAmount(req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	events, err := h.commissions.DistributeGameCommission(c.Request.Context(), middleware.GetAdminCapability(c), appledger.GameEntryCommand{
		EntryID:   uuid.MustParse(req.EntryID),
		AccountID: uuid.MustParse(req.AccountID),
		Amount:    amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, events)
}

// ListJobs handles GET /admin/jobs
func (h *AdminHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		h.Success(c, []scheduler.JobStats{})
		return
	}
	h.Success(c, h.jobs.Stats())
}

// TriggerJob handles POST /admin/jobs/:name/trigger and waits for the run
func (h *AdminHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if h.jobs == nil {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Job not found")
		return
	}
	err := h.jobs.Trigger(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Job not found")
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		h.Error(c, http.StatusConflict, dto.ErrCodeConcurrencyConflict, "Job already running")
	case err != nil:
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, err.Error())
	default:
		for _, st := range h.jobs.Stats() {
			if st.Name == name {
				h.Success(c, st)
				return
			}
		}
		h.NoContent(c)
	}
}
