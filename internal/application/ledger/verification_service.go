package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateVerificationCommand files a manual verification request. TxHash is
// empty for hosted-gateway orders the user has no hash for.
type CreateVerificationCommand struct {
	AccountID uuid.UUID
	OrderID   string
	TxHash    string
	Message   string
}

// ReviewCommand is an administrator's decision on a request
type ReviewCommand struct {
	RequestID uuid.UUID
	Decision  ledger.ReviewDecision
	// Amount is the approved asset amount; required for approvals
	Amount decimal.Decimal
	// Notes carries the rejection reason or the question for the user
	Notes string
}

// ProofUploadDTO tells the client where to upload a proof image
type ProofUploadDTO struct {
	RequestID uuid.UUID `json:"request_id"`
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProofDownloadDTO is a short-lived link to an uploaded proof image
type ProofDownloadDTO struct {
	RequestID   uuid.UUID `json:"request_id"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// proofContentTypes are the screenshot formats accepted as proof
var proofContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// VerificationService runs the manual verification workflow
type VerificationService struct {
	deps      Deps
	crediting *CreditingService
	uploader  ProofUploader
}

// NewVerificationService creates a VerificationService. uploader may be nil
// when proof uploads are disabled.
func NewVerificationService(deps Deps, crediting *CreditingService, uploader ProofUploader) *VerificationService {
	return &VerificationService{deps: deps.withDefaults(), crediting: crediting, uploader: uploader}
}

// CreateRequest opens a request for a payment that has not been credited.
// A supplied transaction hash must not back any other payment or request
// and is attached to the payment reference.
func (s *VerificationService) CreateRequest(ctx context.Context, cmd CreateVerificationCommand) (*VerificationRequestDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "verification", "create_request")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, cmd.OrderID,
		telemetry.SpanAttrAccountID, cmd.AccountID.String())

	var hash string
	if strings.TrimSpace(cmd.TxHash) != "" {
		normalized, err := ledger.NormalizeTxHash(cmd.TxHash)
		if err != nil {
			return nil, err
		}
		hash = normalized
	}

	var dto VerificationRequestDTO
	err := retryOnConflict(ctx, s.deps.Logger, "create_verification", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			found, err := repos.Payments().FindByOrderID(ctx, cmd.OrderID)
			if err != nil {
				return err
			}
			// the row lock serializes concurrent filings for one reference
			ref, err := repos.Payments().FindByIDForUpdate(ctx, found.ID)
			if err != nil {
				return err
			}
			if ref.OwnerAccountID != cmd.AccountID {
				return shared.ErrNotFound
			}
			if ref.Credited || ref.Status.IsSuccess() {
				return shared.NewDomainErrorf(shared.CodeInvalidState, "payment %s is already %s", ref.OrderID, ref.Status)
			}

			existing, err := repos.Verifications().FindByPaymentReference(ctx, ref.ID)
			if err != nil {
				return err
			}
			for _, r := range existing {
				if r.Status.IsOpen() {
					return shared.NewDomainErrorf(shared.CodeAlreadyExists, "payment %s already has an open verification request", ref.OrderID)
				}
				if r.Status == ledger.VerificationRejected {
					return shared.NewDomainErrorf(shared.CodeInvalidState, "verification for payment %s was rejected, start a new payment", ref.OrderID)
				}
			}

			req, err := ledger.NewVerificationRequest(ref, cmd.AccountID, hash, cmd.Message)
			if err != nil {
				return err
			}
			if hash != "" {
				if err := s.ensureUniqueHash(ctx, repos, hash, ref.ID); err != nil {
					return err
				}
				expected := ref.Status
				if err := ref.AttachTxHash(hash); err != nil {
					return err
				}
				if err := repos.Payments().Save(ctx, ref, expected); err != nil {
					return err
				}
			}
			if err := repos.Verifications().Create(ctx, req); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, ref, req); err != nil {
				return err
			}
			dto = ToVerificationRequestDTO(req)
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, shared.ErrDuplicateProof) {
			s.deps.Logger.Warn("Duplicate proof rejected",
				zap.String("order_id", cmd.OrderID),
				zap.String("account_id", cmd.AccountID.String()),
				zap.String("tx_hash", hash))
		}
		return nil, err
	}

	s.deps.Logger.Info("Verification request created",
		zap.String("request_id", dto.ID.String()),
		zap.String("order_id", dto.OrderID))
	return &dto, nil
}

func (s *VerificationService) ensureUniqueHash(ctx context.Context, repos TransactionalRepositories, hash string, refID uuid.UUID) error {
	used, err := repos.Payments().ExistsByTxHash(ctx, hash, refID)
	if err != nil {
		return err
	}
	if !used {
		used, err = repos.Verifications().ExistsByTxHash(ctx, hash)
		if err != nil {
			return err
		}
	}
	if used {
		return shared.ErrDuplicateProof.WithDetails(hash)
	}
	return nil
}

// StartReview moves a pending request into review
func (s *VerificationService) StartReview(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*VerificationRequestDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, func(r *ledger.VerificationRequest) error {
		return r.StartReview(admin, s.deps.Now())
	})
}

// AdminReview applies an approve, reject or request-info decision. Approval
// credits the payment with the approved amount in the same transaction; if
// the payment was already credited (for example by a gateway push that won
// the race) the outcome is recorded in the admin notes and the approval
// still succeeds.
func (s *VerificationService) AdminReview(ctx context.Context, admin ledger.AdminCapability, cmd ReviewCommand) (*VerificationRequestDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "verification", "admin_review")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRequestID, cmd.RequestID.String(),
		telemetry.SpanAttrDecision, string(cmd.Decision))

	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	switch cmd.Decision {
	case ledger.DecisionApprove:
		if !cmd.Amount.IsPositive() {
			return nil, shared.NewDomainError(shared.CodeInvalidInput, "approved amount must be positive")
		}
	case ledger.DecisionReject, ledger.DecisionRequestMoreInfo:
		if strings.TrimSpace(cmd.Notes) == "" {
			return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "%s requires a note", cmd.Decision)
		}
	default:
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown review decision %q", cmd.Decision)
	}

	var (
		dto    VerificationRequestDTO
		credit *CreditResult
	)
	err := retryOnConflict(ctx, s.deps.Logger, "admin_review", s.deps.Config.MaxCreditAttempts, func() error {
		credit = nil
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			req, err := repos.Verifications().FindByIDForUpdate(ctx, cmd.RequestID)
			if err != nil {
				return err
			}
			now := s.deps.Now()
			if err := req.Decide(admin, cmd.Decision, cmd.Notes, cmd.Amount, now); err != nil {
				return err
			}

			if cmd.Decision == ledger.DecisionApprove {
				credit, err = s.crediting.creditWithin(ctx, repos, CreditCommand{
					PaymentReferenceID: req.PaymentReferenceID,
					Amount:             cmd.Amount,
					SettleAs:           ledger.PaymentStatusConfirmed,
					Source:             ledger.CreditSourceAdmin,
				})
				if err != nil {
					return fmt.Errorf("credit approved payment: %w", err)
				}
				if credit.Outcome == OutcomeAlreadyCredited {
					req.AppendAdminNote(fmt.Sprintf("payment was already credited with %s (status %s), no balance change",
						credit.Amount.String(), credit.Status))
				}
			}

			if err := repos.Verifications().Save(ctx, req); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, req); err != nil {
				return err
			}
			dto = ToVerificationRequestDTO(req)
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if credit != nil {
		s.crediting.afterCommit(ctx, credit, ledger.CreditSourceAdmin)
	}
	s.deps.Logger.Info("Verification request reviewed",
		zap.String("request_id", cmd.RequestID.String()),
		zap.String("decision", string(cmd.Decision)),
		zap.String("admin_id", admin.AdminID().String()))
	return &dto, nil
}

// UserRespond answers an admin's request for more information
func (s *VerificationService) UserRespond(ctx context.Context, accountID, requestID uuid.UUID, text string) (*VerificationRequestDTO, error) {
	return s.mutate(ctx, requestID, func(r *ledger.VerificationRequest) error {
		if r.AccountID != accountID {
			return shared.ErrNotFound
		}
		return r.Respond(accountID, text)
	})
}

// RequestProofUpload issues a presigned upload URL for a proof image and
// records the object key on the request.
func (s *VerificationService) RequestProofUpload(ctx context.Context, accountID, requestID uuid.UUID, contentType string) (*ProofUploadDTO, error) {
	if s.uploader == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "proof uploads are disabled")
	}
	if _, ok := proofContentTypes[contentType]; !ok {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unsupported proof content type %q", contentType)
	}
	key := fmt.Sprintf("verification-proofs/%s/%s", requestID, ulid.Make().String())

	url, expiresAt, err := s.uploader.PresignUpload(ctx, key, contentType)
	if err != nil {
		return nil, upstreamError(err)
	}
	_, err = s.mutate(ctx, requestID, func(r *ledger.VerificationRequest) error {
		if r.AccountID != accountID {
			return shared.ErrNotFound
		}
		return r.AttachProof(key)
	})
	if err != nil {
		return nil, err
	}
	return &ProofUploadDTO{RequestID: requestID, UploadURL: url, ObjectKey: key, ExpiresAt: expiresAt}, nil
}

// ProofDownloadURL issues a presigned link to the proof attached to a
// request; admin only
func (s *VerificationService) ProofDownloadURL(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*ProofDownloadDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "proof uploads are disabled")
	}
	var key string
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		req, err := repos.Verifications().FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ProofObjectKey == nil {
			return shared.NewDomainError(shared.CodeNotFound, "no proof has been attached to this request")
		}
		key = *req.ProofObjectKey
		return nil
	})
	if err != nil {
		return nil, err
	}
	url, expiresAt, err := s.uploader.PresignDownload(ctx, key)
	if err != nil {
		return nil, upstreamError(err)
	}
	return &ProofDownloadDTO{RequestID: requestID, DownloadURL: url, ExpiresAt: expiresAt}, nil
}

// Get returns any request; admin only
func (s *VerificationService) Get(ctx context.Context, admin ledger.AdminCapability, requestID uuid.UUID) (*VerificationRequestDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	return s.get(ctx, requestID, nil)
}

// GetForAccount returns a request only to the account that filed it
func (s *VerificationService) GetForAccount(ctx context.Context, accountID, requestID uuid.UUID) (*VerificationRequestDTO, error) {
	return s.get(ctx, requestID, &accountID)
}

// ListOpen lists requests awaiting a decision, oldest first
func (s *VerificationService) ListOpen(ctx context.Context, admin ledger.AdminCapability, filter shared.Filter) (*shared.Paginated[VerificationRequestDTO], error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	return s.list(ctx, func(repos TransactionalRepositories) (*shared.Paginated[ledger.VerificationRequest], error) {
		return repos.Verifications().ListOpen(ctx, filter)
	})
}

// ListForAccount lists the requests an account filed
func (s *VerificationService) ListForAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[VerificationRequestDTO], error) {
	return s.list(ctx, func(repos TransactionalRepositories) (*shared.Paginated[ledger.VerificationRequest], error) {
		return repos.Verifications().ListByAccount(ctx, accountID, filter)
	})
}

func (s *VerificationService) list(ctx context.Context, query func(TransactionalRepositories) (*shared.Paginated[ledger.VerificationRequest], error)) (*shared.Paginated[VerificationRequestDTO], error) {
	var page *shared.Paginated[ledger.VerificationRequest]
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		page, err = query(repos)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]VerificationRequestDTO, len(page.Items))
	for i := range page.Items {
		items[i] = ToVerificationRequestDTO(&page.Items[i])
	}
	result := shared.NewPaginated(items, page.Total, page.Page, page.PageSize)
	return &result, nil
}

func (s *VerificationService) get(ctx context.Context, requestID uuid.UUID, owner *uuid.UUID) (*VerificationRequestDTO, error) {
	var dto VerificationRequestDTO
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		req, err := repos.Verifications().FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if owner != nil && req.AccountID != *owner {
			return shared.ErrNotFound
		}
		dto = ToVerificationRequestDTO(req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

func (s *VerificationService) mutate(ctx context.Context, requestID uuid.UUID, fn func(*ledger.VerificationRequest) error) (*VerificationRequestDTO, error) {
	var dto VerificationRequestDTO
	err := retryOnConflict(ctx, s.deps.Logger, "update_verification", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			req, err := repos.Verifications().FindByIDForUpdate(ctx, requestID)
			if err != nil {
				return err
			}
			if err := fn(req); err != nil {
				return err
			}
			if err := repos.Verifications().Save(ctx, req); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, req); err != nil {
				return err
			}
			dto = ToVerificationRequestDTO(req)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}
