package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// VerificationStatus is the state of a manual verification request
type VerificationStatus string

const (
	VerificationPending           VerificationStatus = "pending"
	VerificationReviewing         VerificationStatus = "reviewing"
	VerificationMoreInfoRequested VerificationStatus = "more_info_requested"
	VerificationApproved          VerificationStatus = "approved"
	VerificationRejected          VerificationStatus = "rejected"
)

var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending:           {VerificationReviewing, VerificationMoreInfoRequested},
	VerificationReviewing:         {VerificationApproved, VerificationRejected, VerificationMoreInfoRequested},
	VerificationMoreInfoRequested: {VerificationReviewing},
}

// IsValid checks if the status is a known value
func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationPending, VerificationReviewing, VerificationMoreInfoRequested,
		VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

// IsTerminal reports approved or rejected
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// IsOpen reports a request that still awaits a decision
func (s VerificationStatus) IsOpen() bool {
	return s.IsValid() && !s.IsTerminal()
}

// CanTransitionTo validates a move against the transition table
func (s VerificationStatus) CanTransitionTo(to VerificationStatus) bool {
	for _, next := range verificationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ReviewDecision is what an administrator decides on a request
type ReviewDecision string

const (
	DecisionApprove         ReviewDecision = "approve"
	DecisionReject          ReviewDecision = "reject"
	DecisionRequestMoreInfo ReviewDecision = "request_more_info"
)

// ParseReviewDecision parses an admin decision
func ParseReviewDecision(s string) (ReviewDecision, error) {
	d := ReviewDecision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestMoreInfo:
		return d, nil
	}
	return "", shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown review decision %q", s)
}

// TargetStatus maps a decision to the status it produces
func (d ReviewDecision) TargetStatus() VerificationStatus {
	switch d {
	case DecisionApprove:
		return VerificationApproved
	case DecisionReject:
		return VerificationRejected
	default:
		return VerificationMoreInfoRequested
	}
}

// VerificationRequest is a user's claim that a payment succeeded despite
// the gateway saying otherwise. TxHash is set for direct on-chain payments
// and nil for stalled hosted-gateway orders.
type VerificationRequest struct {
	shared.BaseAggregateRoot
	PaymentReferenceID  uuid.UUID
	OrderID             string
	AccountID           uuid.UUID
	TxHash              *string
	UserMessage         string
	ProofObjectKey      *string
	Status              VerificationStatus
	AdminNotes          string
	AdminRequestInfo    string
	UserResponse        string
	ApprovedAssetAmount *decimal.Decimal
	ReviewedBy          *uuid.UUID
	ReviewedAt          *time.Time
}

// NewVerificationRequest opens a pending request for a payment reference.
// An empty txHash files the request without on-chain proof.
func NewVerificationRequest(ref *PaymentReference, accountID uuid.UUID, txHash, message string) (*VerificationRequest, error) {
	if ref.OwnerAccountID != accountID {
		return nil, shared.NewDomainError(shared.CodeForbidden, "payment reference belongs to another account")
	}
	r := &VerificationRequest{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		PaymentReferenceID: ref.ID,
		OrderID:            ref.OrderID,
		AccountID:          accountID,
		UserMessage:        strings.TrimSpace(message),
		Status:             VerificationPending,
	}
	if strings.TrimSpace(txHash) != "" {
		hash, err := NormalizeTxHash(txHash)
		if err != nil {
			return nil, err
		}
		r.TxHash = &hash
	}
	return r, nil
}

func (r *VerificationRequest) transition(to VerificationStatus) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "verification request is already %s", r.Status)
	}
	if !r.Status.CanTransitionTo(to) {
		return shared.NewDomainErrorf(shared.CodeInvalidState,
			"verification request cannot move from %s to %s", r.Status, to)
	}
	from := r.Status
	r.Status = to
	r.IncrementVersion()
	r.AddDomainEvent(NewVerificationStatusChangedEvent(r, from))
	return nil
}

// StartReview moves a pending request into review
func (r *VerificationRequest) StartReview(cap AdminCapability, now time.Time) error {
	if err := RequireAdmin(cap); err != nil {
		return err
	}
	if err := r.transition(VerificationReviewing); err != nil {
		return err
	}
	r.stamp(cap, now)
	return nil
}

// Decide applies an admin decision. A pending request is moved through
// reviewing first so approve and reject are reachable in one call. Approval
// records amount as the approved asset amount; a more-info request stores
// notes as the question put to the user.
func (r *VerificationRequest) Decide(cap AdminCapability, decision ReviewDecision, notes string, amount decimal.Decimal, now time.Time) error {
	if err := RequireAdmin(cap); err != nil {
		return err
	}
	if decision == DecisionApprove && !amount.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInput, "approved amount must be positive")
	}
	target := decision.TargetStatus()
	if r.Status == VerificationPending && target != VerificationMoreInfoRequested {
		if err := r.transition(VerificationReviewing); err != nil {
			return err
		}
	}
	if err := r.transition(target); err != nil {
		return err
	}
	switch decision {
	case DecisionApprove:
		approved := amount
		r.ApprovedAssetAmount = &approved
	case DecisionRequestMoreInfo:
		r.AdminRequestInfo = strings.TrimSpace(notes)
	}
	r.AppendAdminNote(notes)
	r.stamp(cap, now)
	return nil
}

// Respond records the user's answer to the open more-info request and
// returns the request to review.
func (r *VerificationRequest) Respond(accountID uuid.UUID, message string) error {
	if r.AccountID != accountID {
		return shared.NewDomainError(shared.CodeForbidden, "verification request belongs to another account")
	}
	if r.Status != VerificationMoreInfoRequested {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "verification request is %s, not awaiting information", r.Status)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "response message is required")
	}
	r.UserResponse = message
	return r.transition(VerificationReviewing)
}

// AttachProof stores the object key of an uploaded proof image
func (r *VerificationRequest) AttachProof(key string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "verification request is already %s", r.Status)
	}
	r.ProofObjectKey = &key
	r.IncrementVersion()
	return nil
}

// AppendAdminNote adds a line to the admin notes
func (r *VerificationRequest) AppendAdminNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if r.AdminNotes == "" {
		r.AdminNotes = note
		return
	}
	r.AdminNotes = r.AdminNotes + "\n" + note
}

func (r *VerificationRequest) stamp(cap AdminCapability, now time.Time) {
	id := cap.AdminID()
	r.ReviewedBy = &id
	r.ReviewedAt = &now
}
