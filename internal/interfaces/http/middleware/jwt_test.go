package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/auth"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authEpoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newJWTService(now time.Time) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "middleware-test-secret-32-characters",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "mxi-presale",
	}).WithClock(func() time.Time { return now })
}

type failingBlacklist struct{}

func (failingBlacklist) RevokeToken(context.Context, string, time.Duration) error { return nil }
func (failingBlacklist) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingBlacklist) RevokeAccount(context.Context, string, time.Duration) error { return nil }
func (failingBlacklist) IsAccountRevoked(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("redis down")
}

func newAuthRouter(cfg JWTMiddlewareConfig, issuer *auth.CapabilityIssuer) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Use(JWTAuthMiddlewareWithConfig(cfg))
	r.GET("/api/v1/me", func(c *gin.Context) {
		id, ok := GetAccountID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.String())
	})
	admin := r.Group("/api/v1/admin", RequireAdmin(issuer))
	admin.GET("/whoami", func(c *gin.Context) {
		capability := GetAdminCapability(c)
		if err := ledger.RequireAdmin(capability); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, capability.AdminID().String())
	})
	return r
}

func bearer(t *testing.T, svc *auth.JWTService, accountID uuid.UUID, role auth.Role) string {
	t.Helper()
	issued, err := svc.GenerateAccessToken(accountID, role)
	require.NoError(t, err)
	return BearerPrefix + issued.AccessToken
}

func serve(r *gin.Engine, method, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set(AuthHeaderKey, authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := newJWTService(authEpoch)
	issuer := auth.NewCapabilityIssuer(time.Hour, func() time.Time { return authEpoch })
	r := newAuthRouter(JWTMiddlewareConfig{JWTService: svc}, issuer)
	accountID := uuid.New()

	t.Run("routes mounted before the middleware need no token", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, decodeResponse(t, w).Error.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/me", BearerPrefix+"not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, decodeResponse(t, w).Error.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		old := bearer(t, newJWTService(authEpoch.Add(-time.Hour)), accountID, auth.RoleInvestor)
		w := serve(r, http.MethodGet, "/api/v1/me", old)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenExpired, decodeResponse(t, w).Error.Code)
	})

	t.Run("valid token exposes the account", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/me", bearer(t, svc, accountID, auth.RoleInvestor))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, accountID.String(), w.Body.String())
	})

	t.Run("investor is refused admin routes", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/admin/whoami", bearer(t, svc, accountID, auth.RoleInvestor))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeResponse(t, w).Error.Code)
	})

	t.Run("admin gets a capability", func(t *testing.T) {
		adminID := uuid.New()
		w := serve(r, http.MethodGet, "/api/v1/admin/whoami", bearer(t, svc, adminID, auth.RoleAdmin))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, adminID.String(), w.Body.String())
	})
}

func TestJWTAuthMiddleware_Blacklist(t *testing.T) {
	svc := newJWTService(authEpoch)
	issuer := auth.NewCapabilityIssuer(time.Hour, func() time.Time { return authEpoch })
	ctx := context.Background()

	t.Run("revoked token", func(t *testing.T) {
		blacklist := auth.NewInMemoryTokenBlacklist(func() time.Time { return authEpoch })
		r := newAuthRouter(JWTMiddlewareConfig{JWTService: svc, TokenBlacklist: blacklist}, issuer)

		token := bearer(t, svc, uuid.New(), auth.RoleInvestor)
		claims, err := svc.ValidateAccessToken(token[len(BearerPrefix):])
		require.NoError(t, err)
		require.NoError(t, blacklist.RevokeToken(ctx, claims.ID, time.Hour))

		w := serve(r, http.MethodGet, "/api/v1/me", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenRevoked, decodeResponse(t, w).Error.Code)
	})

	t.Run("revoked account sessions", func(t *testing.T) {
		blacklist := auth.NewInMemoryTokenBlacklist(func() time.Time { return authEpoch.Add(time.Minute) })
		r := newAuthRouter(JWTMiddlewareConfig{JWTService: svc, TokenBlacklist: blacklist}, issuer)

		accountID := uuid.New()
		token := bearer(t, svc, accountID, auth.RoleInvestor)
		require.NoError(t, blacklist.RevokeAccount(ctx, accountID.String(), time.Hour))

		w := serve(r, http.MethodGet, "/api/v1/me", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenRevoked, decodeResponse(t, w).Error.Code)
	})

	t.Run("lookup failures fail open", func(t *testing.T) {
		r := newAuthRouter(JWTMiddlewareConfig{JWTService: svc, TokenBlacklist: failingBlacklist{}}, issuer)
		w := serve(r, http.MethodGet, "/api/v1/me", bearer(t, svc, uuid.New(), auth.RoleInvestor))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetAdminCapability_ZeroValueWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.False(t, GetAdminCapability(c).Valid())
	_, ok := GetAccountID(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
}
