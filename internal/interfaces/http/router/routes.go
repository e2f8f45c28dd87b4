package router

import (
	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/infrastructure/auth"
	"github.com/mxi/presale/internal/interfaces/http/handler"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
)

// Handlers groups the HTTP handlers of the ledger API
type Handlers struct {
	System        *handler.SystemHandler
	Accounts      *handler.AccountHandler
	Payments      *handler.PaymentHandler
	Webhooks      *handler.WebhookHandler
	Verifications *handler.VerificationHandler
	Yield         *handler.YieldHandler
	Withdrawals   *handler.WithdrawalHandler
	Admin         *handler.AdminHandler
}

// RoutesConfig wires authentication into the versioned API
type RoutesConfig struct {
	JWT         middleware.JWTMiddlewareConfig
	Capability  *auth.CapabilityIssuer
	RateLimiter *middleware.RateLimiter
}

// RegisterLedgerRoutes mounts the health probe and every /api/v1 route
func RegisterLedgerRoutes(engine *gin.Engine, h Handlers, cfg RoutesConfig) *Router {
	engine.GET(HealthPath, h.System.Health)

	r := NewRouter(engine)
	r.Guard(AccessAccount, middleware.JWTAuthMiddlewareWithConfig(cfg.JWT))
	r.Guard(AccessAdmin, middleware.RequireAdmin(cfg.Capability))
	r.UseAfterGuard(middleware.SpanErrorMarker())
	if cfg.RateLimiter != nil {
		r.UseAfterGuard(middleware.RateLimit(cfg.RateLimiter))
	}

	system := NewRouteGroup("system", "/system", AccessPublic)
	system.GET("/info", h.System.GetSystemInfo)

	webhooks := NewRouteGroup("webhooks", "/webhooks", AccessPublic)
	webhooks.POST("/gateway", h.Webhooks.GatewayNotification)

	accounts := NewRouteGroup("accounts", "/accounts", AccessAccount)
	accounts.POST("", h.Accounts.Register)
	accounts.GET("/me", h.Accounts.Me)
	accounts.GET("/me/referrals", h.Accounts.Referrals)

	payments := NewRouteGroup("payments", "/payments", AccessAccount)
	payments.POST("", h.Payments.CreateInvoice)
	payments.GET("", h.Payments.List)
	payments.GET("/:order_id", h.Payments.Get)
	payments.POST("/:order_id/refresh", h.Payments.Refresh)

	verifications := NewRouteGroup("verifications", "/verifications", AccessAccount)
	verifications.POST("", h.Verifications.Create)
	verifications.GET("", h.Verifications.List)
	verifications.GET("/:id", h.Verifications.Get)
	verifications.POST("/:id/responses", h.Verifications.Respond)
	verifications.POST("/:id/proof", h.Verifications.RequestProofUpload)

	yield := NewRouteGroup("yield", "/yield", AccessAccount)
	yield.GET("", h.Yield.Get)
	yield.POST("/claim", h.Yield.Claim)

	balances := NewRouteGroup("balances", "", AccessAccount)
	balances.GET("/eligibility/:kind", h.Withdrawals.Eligibility)
	balances.POST("/withdrawals/commissions", h.Withdrawals.WithdrawCommissions)
	balances.POST("/withdrawals/vesting", h.Withdrawals.WithdrawVested)
	balances.GET("/vesting", h.Withdrawals.Vesting)
	balances.GET("/commissions", h.Withdrawals.Commissions)

	admin := NewRouteGroup("admin", "/admin", AccessAdmin)
	admin.GET("/launch", h.Admin.GetLaunch)
	admin.PUT("/launch", h.Admin.SetLaunch)
	admin.PUT("/accounts/:id/kyc", h.Admin.SetKYC)
	admin.POST("/accounts/:id/vesting", h.Admin.FundVesting)
	admin.POST("/accounts/:id/sessions/revoke", h.Admin.RevokeSessions)
	admin.GET("/payments/:order_id", h.Admin.GetPayment)
	admin.POST("/payments/:order_id/refresh", h.Admin.RefreshPayment)
	admin.POST("/payments/:order_id/retry-credit", h.Admin.RetryCredit)
	admin.GET("/verifications", h.Admin.ListVerifications)
	admin.GET("/verifications/:id", h.Admin.GetVerification)
	admin.POST("/verifications/:id/start", h.Admin.StartReview)
	admin.POST("/verifications/:id/review", h.Admin.Review)
	admin.GET("/verifications/:id/proof", h.Admin.ProofDownload)
	admin.POST("/game-commissions", h.Admin.GameCommission)
	admin.GET("/jobs", h.Admin.ListJobs)
	admin.POST("/jobs/:name/trigger", h.Admin.TriggerJob)

	r.Register(system, webhooks, accounts, payments, verifications, yield, balances, admin)
	r.Setup()
	return r
}
