package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/auth"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey       = "jwt_claims"
	AccountIDKey       = "account_id"
	AdminCapabilityKey = "admin_capability"
	AuthHeaderKey      = "Authorization"
	BearerPrefix       = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// JWTService is required for token validation
	JWTService *auth.JWTService
	// TokenBlacklist is optional for checking revoked tokens
	TokenBlacklist auth.TokenBlacklist
	Logger         *zap.Logger
}

// JWTAuthMiddlewareWithConfig authenticates the bearer token and stores the
// claims and account ID on the context
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" || !strings.HasPrefix(authHeader, BearerPrefix) {
			handleAuthError(c, cfg, auth.ErrInvalidToken, "Missing or malformed authorization header")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		if cfg.TokenBlacklist != nil {
			ctx := c.Request.Context()
			// Lookup failures fail open
			if claims.ID != "" {
				revoked, err := cfg.TokenBlacklist.IsRevoked(ctx, claims.ID)
				if err != nil {
					cfg.Logger.Error("Failed to check token blacklist", zap.String("jti", claims.ID), zap.Error(err))
				} else if revoked {
					handleAuthError(c, cfg, auth.ErrTokenRevoked, "Token has been revoked")
					return
				}
			}
			revoked, err := cfg.TokenBlacklist.IsAccountRevoked(ctx, claims.AccountID, claims.IssuedAtTime())
			if err != nil {
				cfg.Logger.Error("Failed to check account revocation", zap.String("account_id", claims.AccountID), zap.Error(err))
			} else if revoked {
				handleAuthError(c, cfg, auth.ErrTokenRevoked, "Account sessions have been revoked")
				return
			}
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(AccountIDKey, claims.AccountID)

		ctx, _ := logger.WithAccountID(c.Request.Context(), logger.FromContext(c.Request.Context()), claims.AccountID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func handleAuthError(c *gin.Context, cfg JWTMiddlewareConfig, err error, message string) {
	cfg.Logger.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path),
	)

	code := dto.ErrCodeUnauthorized
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code = dto.ErrCodeTokenExpired
	case errors.Is(err, auth.ErrTokenRevoked):
		code = dto.ErrCodeTokenRevoked
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidTokenType),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingAccountID),
		errors.Is(err, auth.ErrTokenNotYetValid):
		code = dto.ErrCodeTokenInvalid
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// RequireAdmin turns admin claims into a ledger.AdminCapability stored on the
// context. It must run after the JWT middleware.
func RequireAdmin(issuer *auth.CapabilityIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		capability, err := issuer.Issue(GetJWTClaims(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, err.Error(), GetRequestID(c)))
			return
		}
		c.Set(AdminCapabilityKey, capability)
		c.Next()
	}
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetAccountID returns the authenticated account
func GetAccountID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(AccountIDKey))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetAdminCapability returns the capability set by RequireAdmin. The zero
// value is rejected by every admin operation.
func GetAdminCapability(c *gin.Context) ledger.AdminCapability {
	if v, ok := c.Get(AdminCapabilityKey); ok {
		if capability, ok := v.(ledger.AdminCapability); ok {
			return capability
		}
	}
	return ledger.AdminCapability{}
}
