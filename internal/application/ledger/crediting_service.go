package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CreditingService turns a resolved payment reference into exactly one
// purchased-balance credit.
type CreditingService struct {
	deps       Deps
	commission *CommissionService
}

// NewCreditingService creates a CreditingService. The commission service is
// invoked after every committed credit and may be nil.
func NewCreditingService(deps Deps, commission *CommissionService) *CreditingService {
	return &CreditingService{deps: deps.withDefaults(), commission: commission}
}

// Credit settles a payment reference and credits its owner once. Repeated
// calls for an already credited reference return OutcomeAlreadyCredited
// without touching any balance.
//
// If the credit cannot be applied for a reason other than the reference's
// own state, the reference is parked in credit_failed and the error is
// returned so the caller (or the gateway's redelivery) can retry.
func (s *CreditingService) Credit(ctx context.Context, cmd CreditCommand) (*CreditResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crediting", "credit")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, cmd.PaymentReferenceID.String(),
		telemetry.SpanAttrSource, string(cmd.Source))

	var result *CreditResult
	err := retryOnConflict(ctx, s.deps.Logger, "credit", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			result, err = s.creditWithin(ctx, repos, cmd)
			return err
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shouldParkAsCreditFailed(err) {
			s.markCreditFailed(ctx, cmd, err)
		}
		return nil, err
	}

	s.afterCommit(ctx, result, cmd.Source)
	return result, nil
}

// creditWithin performs the credit inside an open transaction. Callers that
// already hold a transaction (admin approval) use it directly and must call
// afterCommit once the transaction commits.
func (s *CreditingService) creditWithin(ctx context.Context, repos TransactionalRepositories, cmd CreditCommand) (*CreditResult, error) {
	now := s.deps.Now()

	ref, err := repos.Payments().FindByIDForUpdate(ctx, cmd.PaymentReferenceID)
	if err != nil {
		return nil, err
	}
	if ref.Credited {
		return &CreditResult{
			Outcome:            OutcomeAlreadyCredited,
			PaymentReferenceID: ref.ID,
			OrderID:            ref.OrderID,
			AccountID:          ref.OwnerAccountID,
			Amount:             ref.CreditedAssetAmount,
			Status:             ref.Status,
		}, nil
	}
	expected := ref.Status

	if cmd.Signal != nil {
		if err := ref.AssignGatewayPaymentID(cmd.Signal.GatewayPaymentID); err != nil {
			return nil, err
		}
		ref.RecordSettlementDetails(cmd.Signal.ActuallyPaid, cmd.Signal.NetworkFee)
	}

	settleAs := cmd.SettleAs
	if settleAs == "" {
		settleAs = ledger.PaymentStatusFinished
	}
	amount := ref.CreditedAssetAmount
	if cmd.Amount.IsPositive() {
		amount = cmd.Amount
	}
	if err := ref.SettleAndMarkCredited(settleAs, amount, cmd.Source, now); err != nil {
		return nil, err
	}

	account, err := repos.Accounts().FindByIDForUpdate(ctx, ref.OwnerAccountID)
	if err != nil {
		return nil, fmt.Errorf("load owner account: %w", err)
	}
	firstContribution := !account.HasContributed()
	if err := account.CreditPurchase(amount, s.deps.Config.Yield, now); err != nil {
		return nil, err
	}

	if err := repos.Payments().Save(ctx, ref, expected); err != nil {
		return nil, err
	}
	if err := repos.Accounts().Save(ctx, account); err != nil {
		return nil, err
	}
	aggregates := []shared.AggregateRoot{ref, account}

	if firstContribution && account.ReferredBy != nil {
		referrer, err := repos.Accounts().FindByIDForUpdate(ctx, *account.ReferredBy)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			s.deps.Logger.Warn("Referrer account missing, active referral not counted",
				zap.String("account_id", account.ID.String()),
				zap.String("referrer_id", account.ReferredBy.String()))
		case err != nil:
			return nil, err
		default:
			referrer.RecordActiveReferral()
			if err := repos.Accounts().Save(ctx, referrer); err != nil {
				return nil, err
			}
			aggregates = append(aggregates, referrer)
		}
	}

	if err := recordAll(ctx, repos, aggregates...); err != nil {
		return nil, err
	}

	return &CreditResult{
		Outcome:            OutcomeCredited,
		PaymentReferenceID: ref.ID,
		OrderID:            ref.OrderID,
		AccountID:          ref.OwnerAccountID,
		Amount:             amount,
		Status:             ref.Status,
	}, nil
}

// afterCommit fans out the side effects of a committed credit. The commission
// waterfall is idempotent per contribution, and the PaymentCredited outbox
// event re-drives it if this attempt fails.
func (s *CreditingService) afterCommit(ctx context.Context, result *CreditResult, source ledger.CreditSource) {
	s.deps.Metrics.RecordCredit(ctx, string(result.Outcome), string(source), result.Amount)
	if result.Outcome != OutcomeCredited {
		s.deps.Logger.Info("Payment already credited",
			zap.String("order_id", result.OrderID),
			zap.String("source", string(source)))
		return
	}

	s.deps.Logger.Info("Payment credited",
		zap.String("order_id", result.OrderID),
		zap.String("account_id", result.AccountID.String()),
		zap.String("amount", result.Amount.String()),
		zap.String("status", result.Status.String()),
		zap.String("source", string(source)))

	if s.commission == nil {
		return
	}
	_, err := s.commission.Distribute(ctx, ledger.Contribution{
		ID:        result.PaymentReferenceID,
		AccountID: result.AccountID,
		Amount:    result.Amount,
		Scheme:    ledger.SchemeContribution,
	})
	if err != nil {
		s.deps.Logger.Warn("Commission waterfall deferred to outbox",
			zap.String("order_id", result.OrderID),
			zap.Error(err))
	}
}

// shouldParkAsCreditFailed separates infrastructure failures from outcomes
// determined by the reference's own state or the caller's input.
func shouldParkAsCreditFailed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch shared.CodeOf(err) {
	case "", shared.CodeConcurrencyConflict:
		return true
	}
	return false
}

func (s *CreditingService) markCreditFailed(ctx context.Context, cmd CreditCommand, cause error) {
	s.deps.Metrics.RecordCreditFailure(ctx, string(cmd.Source))

	// the request context may be the reason the credit failed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		ref, err := repos.Payments().FindByIDForUpdate(ctx, cmd.PaymentReferenceID)
		if err != nil {
			return err
		}
		if ref.Credited || ref.Status.IsTerminal() {
			return nil
		}
		expected := ref.Status
		if err := ref.MarkCreditFailed(cause.Error()); err != nil {
			return err
		}
		if err := repos.Payments().Save(ctx, ref, expected); err != nil {
			return err
		}
		return recordAll(ctx, repos, ref)
	})
	if err != nil {
		s.deps.Logger.Error("Failed to park payment as credit_failed",
			zap.String("payment_reference_id", cmd.PaymentReferenceID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.deps.Logger.Error("Credit failed, payment parked for retry",
		zap.String("payment_reference_id", cmd.PaymentReferenceID.String()),
		zap.Error(cause))
}
