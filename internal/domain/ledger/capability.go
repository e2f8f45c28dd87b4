package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
)

// AdminCapability is proof that the caller passed the admin authorization
// check. The zero value grants nothing. Only the auth layer mints one, after
// verifying the caller's token carries the admin permission.
type AdminCapability struct {
	adminID  uuid.UUID
	issuedAt time.Time
}

// GrantAdminCapability mints a capability for an authenticated administrator.
func GrantAdminCapability(adminID uuid.UUID, issuedAt time.Time) AdminCapability {
	return AdminCapability{adminID: adminID, issuedAt: issuedAt}
}

// AdminID identifies the administrator exercising the capability
func (c AdminCapability) AdminID() uuid.UUID {
	return c.adminID
}

// IssuedAt returns when the capability was granted
func (c AdminCapability) IssuedAt() time.Time {
	return c.issuedAt
}

// Valid reports whether the capability was actually granted
func (c AdminCapability) Valid() bool {
	return c.adminID != uuid.Nil
}

// RequireAdmin returns ErrForbidden unless the capability is valid
func RequireAdmin(c AdminCapability) error {
	if !c.Valid() {
		return shared.NewDomainError(shared.CodeForbidden, "administrator capability required")
	}
	return nil
}
