package ledger

import (
	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
)

// MaxReferralLevel is the deepest ancestor that earns commission
const MaxReferralLevel = 3

// ReferralEdge links an account to one of its ancestors. Level 1 is the
// direct referrer.
type ReferralEdge struct {
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	Level      int
}

// BuildReferralEdges derives the edges for a newly registered account from
// its direct referrer and the referrer's own upline (levels 1 and 2 of the
// referrer become levels 2 and 3 here).
func BuildReferralEdges(accountID uuid.UUID, referrerID uuid.UUID, referrerUpline []ReferralEdge) ([]ReferralEdge, error) {
	if accountID == referrerID {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "an account cannot refer itself")
	}
	edges := []ReferralEdge{{ReferrerID: referrerID, ReferredID: accountID, Level: 1}}
	for _, up := range referrerUpline {
		level := up.Level + 1
		if level > MaxReferralLevel {
			continue
		}
		if up.ReferrerID == accountID {
			return nil, shared.NewDomainError(shared.CodeInvalidInput, "referral chain would form a cycle")
		}
		edges = append(edges, ReferralEdge{ReferrerID: up.ReferrerID, ReferredID: accountID, Level: level})
	}
	return edges, nil
}
