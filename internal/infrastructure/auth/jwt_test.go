package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenEpoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestJWTService(now time.Time) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "mxi-presale",
	}).WithClock(func() time.Time { return now })
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newTestJWTService(tokenEpoch)
	accountID := uuid.New()

	issued, err := svc.GenerateAccessToken(accountID, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.Equal(t, tokenEpoch.Add(15*time.Minute), issued.ExpiresAt)

	claims, err := svc.ValidateAccessToken(issued.AccessToken)
	require.NoError(t, err)
	got, err := claims.AccountUUID()
	require.NoError(t, err)
	assert.Equal(t, accountID, got)
	assert.True(t, claims.IsAdmin())
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, tokenEpoch, claims.IssuedAtTime())
	assert.Equal(t, 5*time.Minute, claims.RemainingTTL(tokenEpoch.Add(10*time.Minute)))
	assert.Zero(t, claims.RemainingTTL(tokenEpoch.Add(time.Hour)))
}

func TestJWTService_GenerateRequiresAccount(t *testing.T) {
	_, err := newTestJWTService(tokenEpoch).GenerateAccessToken(uuid.Nil, RoleInvestor)
	assert.ErrorIs(t, err, ErrMissingAccountID)
}

func TestJWTService_ValidateFailures(t *testing.T) {
	svc := newTestJWTService(tokenEpoch)
	issued, err := svc.GenerateAccessToken(uuid.New(), RoleInvestor)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		_, err := newTestJWTService(tokenEpoch.Add(time.Hour)).ValidateAccessToken(issued.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		_, err := newTestJWTService(tokenEpoch.Add(-time.Hour)).ValidateAccessToken(issued.AccessToken)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-of-32-characters", AccessTokenExpiration: time.Minute, Issuer: "mxi-presale"}).
			WithClock(func() time.Time { return tokenEpoch })
		_, err := other.ValidateAccessToken(issued.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong token type", func(t *testing.T) {
		token := signClaims(t, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "mxi-presale",
				ExpiresAt: jwt.NewNumericDate(tokenEpoch.Add(time.Minute)),
			},
			AccountID: uuid.NewString(),
			TokenType: "refresh",
		})
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("missing account", func(t *testing.T) {
		token := signClaims(t, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "mxi-presale",
				ExpiresAt: jwt.NewNumericDate(tokenEpoch.Add(time.Minute)),
			},
			TokenType: tokenTypeAccess,
		})
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrMissingAccountID)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		token := signClaims(t, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(tokenEpoch.Add(time.Minute)),
			},
			AccountID: uuid.NewString(),
			TokenType: tokenTypeAccess,
		})
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func signClaims(t *testing.T, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-at-least-32-chars"))
	require.NoError(t, err)
	return s
}

func TestCapabilityIssuer(t *testing.T) {
	svc := newTestJWTService(tokenEpoch)
	adminID := uuid.New()
	issued, err := svc.GenerateAccessToken(adminID, RoleAdmin)
	require.NoError(t, err)
	adminClaims, err := svc.ValidateAccessToken(issued.AccessToken)
	require.NoError(t, err)

	t.Run("grants for admin role", func(t *testing.T) {
		now := tokenEpoch.Add(time.Minute)
		capability, err := NewCapabilityIssuer(10*time.Minute, func() time.Time { return now }).Issue(adminClaims)
		require.NoError(t, err)
		assert.True(t, capability.Valid())
		assert.Equal(t, adminID, capability.AdminID())
		assert.Equal(t, now, capability.IssuedAt())
	})

	t.Run("refuses stale admin tokens", func(t *testing.T) {
		later := tokenEpoch.Add(11 * time.Minute)
		_, err := NewCapabilityIssuer(10*time.Minute, func() time.Time { return later }).Issue(adminClaims)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("refuses investors", func(t *testing.T) {
		issued, err := svc.GenerateAccessToken(uuid.New(), RoleInvestor)
		require.NoError(t, err)
		claims, err := svc.ValidateAccessToken(issued.AccessToken)
		require.NoError(t, err)

		capability, err := NewCapabilityIssuer(0, nil).Issue(claims)
		assert.ErrorIs(t, err, shared.ErrForbidden)
		assert.False(t, capability.Valid())
	})

	t.Run("refuses nil claims", func(t *testing.T) {
		_, err := NewCapabilityIssuer(0, nil).Issue(nil)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}
