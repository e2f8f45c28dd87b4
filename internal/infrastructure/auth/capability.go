package auth

import (
	"time"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
)

// CapabilityIssuer turns validated admin claims into a ledger.AdminCapability.
// Admin tokens older than maxAge are refused even if not yet expired.
type CapabilityIssuer struct {
	maxAge time.Duration
	now    func() time.Time
}

// NewCapabilityIssuer creates an issuer. A zero maxAge disables the age bound.
func NewCapabilityIssuer(maxAge time.Duration, now func() time.Time) *CapabilityIssuer {
	if now == nil {
		now = time.Now
	}
	return &CapabilityIssuer{maxAge: maxAge, now: now}
}

// Issue grants the capability or returns a FORBIDDEN domain error
func (i *CapabilityIssuer) Issue(claims *Claims) (ledger.AdminCapability, error) {
	if claims == nil || !claims.IsAdmin() {
		return ledger.AdminCapability{}, shared.NewDomainError(shared.CodeForbidden, "administrator role required")
	}
	adminID, err := claims.AccountUUID()
	if err != nil {
		return ledger.AdminCapability{}, shared.NewDomainError(shared.CodeUnauthorized, "invalid account in token")
	}
	now := i.now()
	if i.maxAge > 0 && now.Sub(claims.IssuedAtTime()) > i.maxAge {
		return ledger.AdminCapability{}, shared.NewDomainError(shared.CodeForbidden, "administrator token is too old, sign in again")
	}
	return ledger.GrantAdminCapability(adminID, now), nil
}
