package ledger

import (
	"fmt"
	"time"

	"github.com/mxi/presale/internal/domain/shared"
)

// Requirement names a gate that must hold before yield can be claimed or a
// balance withdrawn.
type Requirement string

const (
	RequirementKYCApproved     Requirement = "kyc_approved"
	RequirementActiveReferrals Requirement = "active_referrals"
	RequirementAccountAge      Requirement = "account_age"
	RequirementLaunched        Requirement = "launched"
)

// BalanceKind selects one of an account's balance buckets
type BalanceKind string

const (
	BalancePurchased  BalanceKind = "purchased"
	BalanceCommission BalanceKind = "commission"
	BalanceVesting    BalanceKind = "vesting"
	BalanceYield      BalanceKind = "yield"
	BalanceChallenge  BalanceKind = "challenge"
)

// IsValid checks if the balance kind is known
func (k BalanceKind) IsValid() bool {
	switch k {
	case BalancePurchased, BalanceCommission, BalanceVesting, BalanceYield, BalanceChallenge:
		return true
	}
	return false
}

// RequiresLaunch reports whether withdrawing this kind waits for the global launch flag
func (k BalanceKind) RequiresLaunch() bool {
	return k == BalancePurchased || k == BalanceVesting
}

// ParseBalanceKind parses a balance kind string
func ParseBalanceKind(s string) (BalanceKind, error) {
	k := BalanceKind(s)
	if !k.IsValid() {
		return "", shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown balance kind %q", s)
	}
	return k, nil
}

// RequirementsPolicy holds the thresholds shared by yield claims and withdrawals
type RequirementsPolicy struct {
	MinActiveReferrals int
	MinAccountAge      time.Duration
}

// DefaultRequirementsPolicy returns the presale defaults: 5 active referrals, 10 days.
func DefaultRequirementsPolicy() RequirementsPolicy {
	return RequirementsPolicy{
		MinActiveReferrals: 5,
		MinAccountAge:      10 * 24 * time.Hour,
	}
}

// UnmetForYieldClaim lists every requirement blocking a yield claim
func (p RequirementsPolicy) UnmetForYieldClaim(a *Account, now time.Time) []Requirement {
	var unmet []Requirement
	if a.ActiveReferralCount < p.MinActiveReferrals {
		unmet = append(unmet, RequirementActiveReferrals)
	}
	if a.Age(now) < p.MinAccountAge {
		unmet = append(unmet, RequirementAccountAge)
	}
	if !a.KYCApproved {
		unmet = append(unmet, RequirementKYCApproved)
	}
	return unmet
}

// UnmetForWithdrawal lists every requirement blocking a withdrawal of the given kind
func (p RequirementsPolicy) UnmetForWithdrawal(a *Account, kind BalanceKind, launched bool) []Requirement {
	var unmet []Requirement
	if !a.KYCApproved {
		unmet = append(unmet, RequirementKYCApproved)
	}
	if a.ActiveReferralCount < p.MinActiveReferrals {
		unmet = append(unmet, RequirementActiveReferrals)
	}
	if kind.RequiresLaunch() && !launched {
		unmet = append(unmet, RequirementLaunched)
	}
	return unmet
}

// RequirementsError builds the RequirementsNotMet error naming each unmet gate
func RequirementsError(unmet []Requirement) error {
	details := make([]string, len(unmet))
	for i, r := range unmet {
		details[i] = string(r)
	}
	err := shared.ErrRequirementsNotMet.WithDetails(details...)
	err.Message = fmt.Sprintf("requirements not met: %v", details)
	return err
}
