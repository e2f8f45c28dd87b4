package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type testCaller struct {
	accountID uuid.UUID
	admin     ledger.AdminCapability
}

func investor(id uuid.UUID) testCaller { return testCaller{accountID: id} }

func adminCaller(id uuid.UUID) testCaller {
	return testCaller{accountID: id, admin: ledger.GrantAdminCapability(id, testNow)}
}

var anonymous = testCaller{}

// perform routes one request through h mounted at route, with the caller's
// identity placed where the auth middleware would put it
func perform(caller testCaller, method, route, path, body string, h gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		if caller.accountID != uuid.Nil {
			c.Set(middleware.AccountIDKey, caller.accountID.String())
		}
		if caller.admin.Valid() {
			c.Set(middleware.AdminCapabilityKey, caller.admin)
		}
		c.Next()
	})
	r.Handle(method, route, h)

	var req = httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.True(t, resp.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, out))
}
