package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatedRequest struct {
	Amount   string `json:"amount" binding:"required,posdecimal"`
	Fee      string `json:"fee" binding:"omitempty,decimal"`
	TxHash   string `json:"tx_hash" binding:"omitempty,txhash"`
	Currency string `json:"pay_currency" binding:"omitempty,currency"`
	Note     string `json:"note" binding:"max=5"`
}

func newValidationRouter(t *testing.T) *gin.Engine {
	t.Helper()
	require.NoError(t, SetupValidator())
	r := gin.New()
	r.Use(RequestID())
	r.POST("/validate", func(c *gin.Context) {
		var req validatedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func postJSON(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupValidator_CustomTags(t *testing.T) {
	r := newValidationRouter(t)
	hash := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{"valid", `{"amount":"12.5","fee":"0","tx_hash":"` + hash + `","pay_currency":"usdttrc20"}`, "", ""},
		{"missing amount", `{}`, "amount", "This field is required"},
		{"zero amount", `{"amount":"0"}`, "amount", "Must be a positive decimal number"},
		{"malformed fee", `{"amount":"1","fee":"abc"}`, "fee", "Must be a decimal number"},
		{"negative fee", `{"amount":"1","fee":"-1"}`, "fee", "Must be a decimal number"},
		{"bad hash", `{"amount":"1","tx_hash":"0x12"}`, "tx_hash", "Must be a transaction hash"},
		{"bad currency", `{"amount":"1","pay_currency":"USDT"}`, "pay_currency", "Must be a lower case currency code"},
		{"long note", `{"amount":"1","note":"toolong"}`, "note", "Must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, tt.body)
			if tt.wantField == "" {
				assert.Equal(t, http.StatusOK, w.Code)
				return
			}
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			require.Len(t, resp.Error.Details, 1)
			assert.Equal(t, tt.wantField, resp.Error.Details[0].Field)
			assert.Equal(t, tt.wantMsg, resp.Error.Details[0].Message)
		})
	}
}

func TestHandleValidationError_MalformedBody(t *testing.T) {
	w := postJSON(newValidationRouter(t), `{"amount":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}
