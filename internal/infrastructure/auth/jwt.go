package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/infrastructure/config"
)

// Role is the caller's role carried in the access token
type Role string

const (
	RoleInvestor Role = "investor"
	RoleAdmin    Role = "admin"
)

const tokenTypeAccess = "access"

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingAccountID = errors.New("missing account_id in claims")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

// Claims are the access token claims
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Role      Role   `json:"role"`
	TokenType string `json:"token_type"`
}

// IssuedToken is a signed access token
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

// JWTService signs and validates HS256 access tokens. Tokens are normally
// minted by the account service that shares the secret; GenerateAccessToken
// exists for operators and tests.
type JWTService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		expiration: cfg.AccessTokenExpiration,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
}

// WithClock returns a copy of the service that reads time from now
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	cp := *s
	cp.now = now
	return &cp
}

// GenerateAccessToken signs an access token for an account
func (s *JWTService) GenerateAccessToken(accountID uuid.UUID, role Role) (*IssuedToken, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccountID
	}
	now := s.now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   accountID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		AccountID: accountID.String(),
		Role:      role,
		TokenType: tokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{AccessToken: signed, ExpiresAt: expiresAt, TokenType: "Bearer"}, nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	if claims.AccountID == "" {
		return nil, ErrMissingAccountID
	}
	if _, err := uuid.Parse(claims.AccountID); err != nil {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// Expiration returns the access token lifetime
func (s *JWTService) Expiration() time.Duration {
	return s.expiration
}

// AccountUUID parses the account ID
func (c *Claims) AccountUUID() (uuid.UUID, error) {
	return uuid.Parse(c.AccountID)
}

// IsAdmin reports whether the token carries the admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// IssuedAtTime returns the issued-at time, zero when absent
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// RemainingTTL returns how long the token stays valid after now
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if ttl := c.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}
