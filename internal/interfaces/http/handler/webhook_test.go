package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/gateway"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const notificationBody = `{"payment_id":5077125051,"order_id":"MXI-9","payment_status":"finished","actually_paid":100}`

func TestWebhookHandler_SignedNotification(t *testing.T) {
	verifier, err := gateway.NewIPNVerifier("ipn-secret")
	require.NoError(t, err)
	signature, err := verifier.Sign([]byte(notificationBody))
	require.NoError(t, err)

	svc := new(MockPaymentService)
	svc.On("ApplyGatewaySignal", mock.Anything, mock.MatchedBy(func(s ledger.GatewayStatusSignal) bool {
		return s.OrderID == "MXI-9" && s.Status == "finished"
	})).Return(&appledger.SignalResult{Outcome: appledger.SignalCredited, OrderID: "MXI-9", Status: ledger.PaymentStatusFinished}, nil)
	h := NewWebhookHandler(verifier, svc)

	w := performSigned(h, notificationBody, signature)

	require.Equal(t, http.StatusOK, w.Code)
	var got appledger.SignalResult
	decodeData(t, w, &got)
	assert.Equal(t, appledger.SignalCredited, got.Outcome)
	svc.AssertExpectations(t)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		verifier := new(MockSignalVerifier)
		verifier.On("Verify", mock.Anything, "deadbeef").Return(nil, gateway.ErrInvalidSignature)
		svc := new(MockPaymentService)

		w := performSigned(NewWebhookHandler(verifier, svc), notificationBody, "deadbeef")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidSignature, decode(t, w).Error.Code)
		svc.AssertNotCalled(t, "ApplyGatewaySignal", mock.Anything, mock.Anything)
	})

	t.Run("oversized body", func(t *testing.T) {
		verifier := new(MockSignalVerifier)
		w := performSigned(NewWebhookHandler(verifier, new(MockPaymentService)), strings.Repeat("x", maxNotificationBytes+1), "sig")

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("unknown order is acknowledged", func(t *testing.T) {
		verifier := new(MockSignalVerifier)
		verifier.On("Verify", mock.Anything, "sig").Return(&ledger.GatewayStatusSignal{OrderID: "MXI-404", Status: "finished"}, nil)
		svc := new(MockPaymentService)
		svc.On("ApplyGatewaySignal", mock.Anything, mock.Anything).Return(nil, shared.NewDomainError(shared.CodeNotFound, "payment reference not found"))

		w := performSigned(NewWebhookHandler(verifier, svc), notificationBody, "sig")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unrecognized status is acknowledged", func(t *testing.T) {
		body := `{"payment_id":5077125051,"order_id":"MXI-9","payment_status":"teleported"}`
		verifier := new(MockSignalVerifier)
		verifier.On("Verify", mock.Anything, "sig").Return(&ledger.GatewayStatusSignal{OrderID: "MXI-9", Status: "teleported"}, nil)
		svc := new(MockPaymentService)
		svc.On("ApplyGatewaySignal", mock.Anything, mock.Anything).Return(&appledger.SignalResult{Outcome: appledger.SignalIgnored, OrderID: "MXI-9", Status: ledger.PaymentStatusWaiting}, nil)

		w := performSigned(NewWebhookHandler(verifier, svc), body, "sig")

		require.Equal(t, http.StatusOK, w.Code)
		var got appledger.SignalResult
		decodeData(t, w, &got)
		assert.Equal(t, appledger.SignalIgnored, got.Outcome)
	})

	t.Run("transient failure asks for a retry", func(t *testing.T) {
		verifier := new(MockSignalVerifier)
		verifier.On("Verify", mock.Anything, "sig").Return(&ledger.GatewayStatusSignal{OrderID: "MXI-9", Status: "finished"}, nil)
		svc := new(MockPaymentService)
		svc.On("ApplyGatewaySignal", mock.Anything, mock.Anything).Return(nil, shared.ErrConcurrencyConflict)

		w := performSigned(NewWebhookHandler(verifier, svc), notificationBody, "sig")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func performSigned(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/webhooks/gateway", h.GatewayNotification)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(gateway.SignatureHeader, signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
