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
	"golang.org/x/sync/singleflight"
)

// CreateInvoiceCommand starts a contribution through the hosted gateway
type CreateInvoiceCommand struct {
	AccountID uuid.UUID
	// OrderID is optional; a ULID based ID is generated when empty
	OrderID      string
	FiatAmount   decimal.Decimal
	FiatCurrency string
	PayCurrency  string
}

// ReconciliationService drives payment references through the gateway
// reported states and hands success states to the CreditingService.
type ReconciliationService struct {
	deps      Deps
	gateway   ledger.PaymentGateway
	crediting *CreditingService
	refresh   singleflight.Group
}

// NewReconciliationService creates a ReconciliationService
func NewReconciliationService(deps Deps, gateway ledger.PaymentGateway, crediting *CreditingService) *ReconciliationService {
	return &ReconciliationService{
		deps:      deps.withDefaults(),
		gateway:   gateway,
		crediting: crediting,
	}
}

// CreateInvoice persists a pending reference, then asks the gateway for a
// hosted invoice. A gateway failure leaves the reference pending and returns
// ErrUpstreamUnavailable.
func (s *ReconciliationService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*PaymentReferenceDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create_invoice")
	defer span.End()

	if !s.deps.Config.TokenPrice.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "token price is not configured")
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		orderID = s.deps.Config.OrderIDPrefix + ulid.Make().String()
	}
	fiatCurrency := cmd.FiatCurrency
	if fiatCurrency == "" {
		fiatCurrency = "usd"
	}
	assetAmount := cmd.FiatAmount.DivRound(s.deps.Config.TokenPrice, ledger.AmountScale)

	ref, err := ledger.NewPaymentReference(cmd.AccountID, orderID, cmd.FiatAmount, fiatCurrency, cmd.PayCurrency, assetAmount)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, orderID,
		telemetry.SpanAttrAccountID, cmd.AccountID.String(),
		telemetry.SpanAttrAmount, cmd.FiatAmount.String())

	err = s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Accounts().FindByID(ctx, cmd.AccountID); err != nil {
			return err
		}
		if existing, err := repos.Payments().FindByOrderID(ctx, orderID); err == nil && existing != nil {
			return shared.NewDomainErrorf(shared.CodeAlreadyExists, "order %s already exists", orderID)
		} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err := repos.Payments().Create(ctx, ref); err != nil {
			return err
		}
		return recordAll(ctx, repos, ref)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	ref.ClearDomainEvents()

	gctx, cancel := context.WithTimeout(ctx, s.deps.Config.GatewayTimeout)
	defer cancel()
	invoice, err := s.gateway.CreateInvoice(gctx, ledger.InvoiceRequest{
		OrderID:      orderID,
		FiatAmount:   cmd.FiatAmount,
		FiatCurrency: fiatCurrency,
		PayCurrency:  ref.PayCurrency,
		Description:  fmt.Sprintf("MXI presale contribution %s", orderID),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.deps.Logger.Warn("Gateway invoice creation failed, reference left pending",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, upstreamError(err)
	}

	var dto PaymentReferenceDTO
	err = retryOnConflict(ctx, s.deps.Logger, "attach_invoice", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			current, err := repos.Payments().FindByIDForUpdate(ctx, ref.ID)
			if err != nil {
				return err
			}
			expected := current.Status
			if err := current.AttachInvoice(invoice.InvoiceID, invoice.PaymentURL); err != nil {
				return err
			}
			if err := current.AssignGatewayPaymentID(invoice.GatewayPaymentID); err != nil {
				return err
			}
			if err := repos.Payments().Save(ctx, current, expected); err != nil {
				return err
			}
			dto = ToPaymentReferenceDTO(current)
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.deps.Logger.Info("Invoice created",
		zap.String("order_id", orderID),
		zap.String("invoice_id", invoice.InvoiceID))
	return &dto, nil
}

// ApplyGatewaySignal applies a status pushed by (or pulled from) the gateway.
// Signals for terminal references or with an unrecognized status are logged
// and discarded; success states are credited exactly once through the
// CreditingService.
func (s *ReconciliationService) ApplyGatewaySignal(ctx context.Context, signal ledger.GatewayStatusSignal) (*SignalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "apply_gateway_signal")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, signal.GatewayPaymentID,
		telemetry.SpanAttrOrderID, signal.OrderID,
		telemetry.SpanAttrPaymentStatus, signal.Status)

	ref, err := s.findSignalTarget(ctx, signal)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	target, err := ledger.MapGatewayStatus(signal.Status)
	if err != nil {
		// acknowledged so the gateway stops redelivering
		s.deps.Logger.Warn("Unknown gateway status discarded",
			zap.String("order_id", ref.OrderID),
			zap.String("status", signal.Status))
		s.deps.Metrics.RecordSignal(ctx, string(SignalIgnored))
		return &SignalResult{Outcome: SignalIgnored, OrderID: ref.OrderID, Status: ref.Status}, nil
	}

	if target.IsSuccess() {
		return s.applySuccess(ctx, ref, target, signal)
	}

	result := &SignalResult{OrderID: ref.OrderID}
	err = retryOnConflict(ctx, s.deps.Logger, "apply_signal", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			current, err := repos.Payments().FindByIDForUpdate(ctx, ref.ID)
			if err != nil {
				return err
			}
			result.Status = current.Status
			if current.Status.IsTerminal() {
				result.Outcome = SignalIgnored
				return nil
			}
			expected := current.Status
			if err := current.AssignGatewayPaymentID(signal.GatewayPaymentID); err != nil {
				return err
			}
			current.RecordSettlementDetails(signal.ActuallyPaid, signal.NetworkFee)

			changed, err := current.TransitionTo(target, string(ledger.CreditSourceGateway))
			if errors.Is(err, shared.ErrInvalidState) {
				// out of order delivery, e.g. waiting after confirming
				result.Outcome = SignalIgnored
				return nil
			}
			if err != nil {
				return err
			}
			result.Status = current.Status
			result.Outcome = SignalUnchanged
			if changed {
				result.Outcome = SignalApplied
			}
			if current.GetVersion() == current.PersistedVersion() {
				return nil
			}
			if err := repos.Payments().Save(ctx, current, expected); err != nil {
				return err
			}
			return recordAll(ctx, repos, current)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.deps.Metrics.RecordSignal(ctx, string(result.Outcome))
	if result.Outcome == SignalIgnored {
		s.deps.Logger.Info("Gateway signal discarded",
			zap.String("order_id", ref.OrderID),
			zap.String("current_status", result.Status.String()),
			zap.String("signal_status", target.String()))
	}
	return result, nil
}

func (s *ReconciliationService) applySuccess(ctx context.Context, ref *ledger.PaymentReference, target ledger.PaymentStatus, signal ledger.GatewayStatusSignal) (*SignalResult, error) {
	credit, err := s.crediting.Credit(ctx, CreditCommand{
		PaymentReferenceID: ref.ID,
		SettleAs:           target,
		Source:             ledger.CreditSourceGateway,
		Signal:             &signal,
	})
	if errors.Is(err, shared.ErrAlreadyTerminal) {
		s.deps.Metrics.RecordSignal(ctx, string(SignalIgnored))
		s.deps.Logger.Info("Success signal for closed payment discarded",
			zap.String("order_id", ref.OrderID),
			zap.String("signal_status", target.String()))
		return &SignalResult{Outcome: SignalIgnored, OrderID: ref.OrderID, Status: ref.Status}, nil
	}
	if err != nil {
		return nil, err
	}

	outcome := SignalCredited
	if credit.Outcome == OutcomeAlreadyCredited {
		outcome = SignalAlreadyCredited
	}
	s.deps.Metrics.RecordSignal(ctx, string(outcome))
	return &SignalResult{Outcome: outcome, OrderID: credit.OrderID, Status: credit.Status}, nil
}

func (s *ReconciliationService) findSignalTarget(ctx context.Context, signal ledger.GatewayStatusSignal) (*ledger.PaymentReference, error) {
	var ref *ledger.PaymentReference
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if signal.GatewayPaymentID != "" {
			ref, err = repos.Payments().FindByGatewayPaymentID(ctx, signal.GatewayPaymentID)
			if err == nil || !errors.Is(err, shared.ErrNotFound) || signal.OrderID == "" {
				return err
			}
		}
		if signal.OrderID == "" {
			return shared.NewDomainError(shared.CodeInvalidInput, "signal names neither a payment nor an order")
		}
		ref, err = repos.Payments().FindByOrderID(ctx, signal.OrderID)
		return err
	})
	return ref, err
}

// RefreshStatus pulls the current status from the gateway and applies it.
// Concurrent refreshes of one order share a single upstream call. On timeout
// the reference is left untouched and ErrUpstreamUnavailable is returned.
func (s *ReconciliationService) RefreshStatus(ctx context.Context, orderID string) (*PaymentReferenceDTO, error) {
	ref, err := s.getByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ref.Status.IsTerminal() || ref.GatewayPaymentID == nil {
		dto := ToPaymentReferenceDTO(ref)
		return &dto, nil
	}

	_, err, _ = s.refresh.Do(orderID, func() (any, error) {
		gctx, cancel := context.WithTimeout(ctx, s.deps.Config.GatewayTimeout)
		defer cancel()
		signal, err := s.gateway.GetPaymentStatus(gctx, *ref.GatewayPaymentID)
		if err != nil {
			return nil, upstreamError(err)
		}
		signal.OrderID = ref.OrderID
		if signal.GatewayPaymentID == "" {
			signal.GatewayPaymentID = *ref.GatewayPaymentID
		}
		return s.ApplyGatewaySignal(ctx, *signal)
	})
	if err != nil {
		s.deps.Logger.Warn("Status refresh failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// ReconcileResult summarizes one stale-payment sweep
type ReconcileResult struct {
	Checked int
	Changed int
	Failed  int
}

var openPaymentStatuses = []ledger.PaymentStatus{
	ledger.PaymentStatusPending,
	ledger.PaymentStatusWaiting,
	ledger.PaymentStatusConfirming,
}

// ReconcileStale pulls the gateway status of open references untouched for
// at least staleAfter, up to limit per status. It recovers payments whose
// callback never arrived. Individual failures are logged and skipped.
func (s *ReconciliationService) ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (ReconcileResult, error) {
	var result ReconcileResult
	cutoff := s.deps.Now().Add(-staleAfter)

	var candidates []ledger.PaymentReference
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		for _, status := range openPaymentStatuses {
			refs, err := repos.Payments().ListByStatus(ctx, status, limit)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if ref.GatewayPaymentID != nil && ref.UpdatedAt.Before(cutoff) {
					candidates = append(candidates, ref)
				}
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, ref := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		dto, err := s.RefreshStatus(ctx, ref.OrderID)
		if err != nil {
			result.Failed++
			continue
		}
		if dto.Status != string(ref.Status) {
			result.Changed++
		}
	}
	return result, nil
}

// RetryCredit re-drives a payment parked in credit_failed
func (s *ReconciliationService) RetryCredit(ctx context.Context, admin ledger.AdminCapability, orderID string) (*CreditResult, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	ref, err := s.getByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ref.Credited && ref.Status != ledger.PaymentStatusCreditFailed {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidState, "payment %s is %s, not credit_failed", orderID, ref.Status)
	}
	s.deps.Logger.Info("Retrying credit",
		zap.String("order_id", orderID),
		zap.String("admin_id", admin.AdminID().String()))
	return s.crediting.Credit(ctx, CreditCommand{
		PaymentReferenceID: ref.ID,
		SettleAs:           ledger.PaymentStatusFinished,
		Source:             ledger.CreditSourceRetry,
	})
}

// Get returns a payment reference by order ID
func (s *ReconciliationService) Get(ctx context.Context, orderID string) (*PaymentReferenceDTO, error) {
	ref, err := s.getByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := ToPaymentReferenceDTO(ref)
	return &dto, nil
}

// GetForAccount returns a payment reference only if the account owns it
func (s *ReconciliationService) GetForAccount(ctx context.Context, accountID uuid.UUID, orderID string) (*PaymentReferenceDTO, error) {
	dto, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if dto.OwnerAccountID != accountID {
		return nil, shared.ErrNotFound
	}
	return dto, nil
}

// ListPayments lists an account's payment references, newest first
func (s *ReconciliationService) ListPayments(ctx context.Context, accountID uuid.UUID, filter ledger.PaymentReferenceFilter) (*shared.Paginated[PaymentReferenceDTO], error) {
	var page *shared.Paginated[ledger.PaymentReference]
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		page, err = repos.Payments().ListByAccount(ctx, accountID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]PaymentReferenceDTO, len(page.Items))
	for i := range page.Items {
		items[i] = ToPaymentReferenceDTO(&page.Items[i])
	}
	result := shared.NewPaginated(items, page.Total, page.Page, page.PageSize)
	return &result, nil
}

func (s *ReconciliationService) getByOrderID(ctx context.Context, orderID string) (*ledger.PaymentReference, error) {
	var ref *ledger.PaymentReference
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		ref, err = repos.Payments().FindByOrderID(ctx, orderID)
		return err
	})
	return ref, err
}

// upstreamError normalizes gateway failures to ErrUpstreamUnavailable while
// keeping domain errors the gateway adapter chose deliberately.
func upstreamError(err error) error {
	if shared.CodeOf(err) != "" {
		return err
	}
	return shared.ErrUpstreamUnavailable.WithDetails(err.Error())
}
