package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/gateway"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const maxNotificationBytes = 64 << 10

// signalVerifier authenticates a gateway notification and parses it
type signalVerifier interface {
	Verify(body []byte, signature string) (*ledger.GatewayStatusSignal, error)
}

// WebhookHandler receives the payment gateway's status notifications. The
// route carries no bearer token; the body signature authenticates it.
type WebhookHandler struct {
	BaseHandler
	verifier signalVerifier
	payments paymentService
}

// NewWebhookHandler creates a WebhookHandler
func NewWebhookHandler(verifier signalVerifier, payments paymentService) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, payments: payments}
}

// GatewayNotification handles POST /webhooks/gateway. Signals for unknown
// orders are acknowledged so the gateway stops retrying them; transient
// failures answer 5xx so it retries.
func (h *WebhookHandler) GatewayNotification(c *gin.Context) {
	log := logger.FromGin(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes+1))
	if err != nil {
		h.BadRequest(c, "Unreadable notification body")
		return
	}
	if len(body) > maxNotificationBytes {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Notification body too large")
		return
	}

	signal, err := h.verifier.Verify(body, c.GetHeader(gateway.SignatureHeader))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			log.Warn("Rejected gateway notification", zap.String("client_ip", c.ClientIP()))
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Invalid notification signature")
			return
		}
		h.HandleError(c, err)
		return
	}

	result, err := h.payments.ApplyGatewaySignal(c.Request.Context(), *signal)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("Gateway notification for unknown order",
				zap.String("order_id", signal.OrderID),
				zap.String("gateway_payment_id", signal.GatewayPaymentID),
			)
			h.Success(c, gin.H{"acknowledged": true})
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
