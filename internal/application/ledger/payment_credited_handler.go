package ledger

import (
	"context"
	"fmt"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"go.uber.org/zap"
)

// PaymentCreditedHandler re-drives the commission waterfall from the outbox
// so a waterfall that failed right after a credit is eventually applied.
type PaymentCreditedHandler struct {
	commission *CommissionService
	logger     *zap.Logger
}

// NewPaymentCreditedHandler creates a new handler for payment credited events
func NewPaymentCreditedHandler(commission *CommissionService, logger *zap.Logger) *PaymentCreditedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentCreditedHandler{commission: commission, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *PaymentCreditedHandler) EventTypes() []string {
	return []string{ledger.EventTypePaymentCredited}
}

// Handle distributes commission for the credited contribution
func (h *PaymentCreditedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	credited, ok := event.(*ledger.PaymentCreditedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", ledger.EventTypePaymentCredited),
			zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			ledger.EventTypePaymentCredited, event.EventType())
	}

	_, err := h.commission.Distribute(ctx, ledger.Contribution{
		ID:        credited.PaymentReferenceID,
		AccountID: credited.AccountID,
		Amount:    credited.Amount,
		Scheme:    ledger.SchemeContribution,
	})
	if err != nil {
		return fmt.Errorf("distribute commission for %s: %w", credited.OrderID, err)
	}
	return nil
}

// ChangeNoticeHandler forwards every event that carries a change notice to
// the realtime notifier. Failures are logged and swallowed: notices are
// advisory and delivered at most once.
type ChangeNoticeHandler struct {
	notifier ChangeNotifier
	logger   *zap.Logger
}

// NewChangeNoticeHandler creates a ChangeNoticeHandler
func NewChangeNoticeHandler(notifier ChangeNotifier, logger *zap.Logger) *ChangeNoticeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeNoticeHandler{notifier: notifier, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *ChangeNoticeHandler) EventTypes() []string {
	return []string{
		ledger.EventTypeAccountRegistered,
		ledger.EventTypeAccountBalanceChanged,
		ledger.EventTypePaymentStatusChanged,
		ledger.EventTypePaymentCredited,
		ledger.EventTypeVerificationStatusChanged,
		ledger.EventTypeVestingReleased,
	}
}

// Handle publishes the notice
func (h *ChangeNoticeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	notice, ok := NoticeFromEvent(event)
	if !ok {
		return nil
	}
	if err := h.notifier.Notify(ctx, notice); err != nil {
		h.logger.Warn("Change notice dropped",
			zap.String("entity_type", notice.EntityType),
			zap.String("entity_id", notice.EntityID),
			zap.Error(err))
	}
	return nil
}
