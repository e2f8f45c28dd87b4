package event

import (
	"context"

	"github.com/mxi/presale/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotentHandler drops redeliveries of events the wrapped handler already
// handled. A failed attempt releases its key so the outbox retry can run it.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, config shared.IdempotencyConfig, logger *zap.Logger) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotentHandler{handler: handler, store: store, config: config, logger: logger}
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle processes the event unless its key was already marked processed
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}
	key := event.EventType() + ":" + event.EventID().String()

	fresh, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		// wrapped handlers tolerate redelivery; process anyway
		h.logger.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
	case !fresh:
		h.logger.Debug("duplicate event skipped", zap.String("key", key))
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		if uerr := h.store.Unmark(ctx, key); uerr != nil {
			h.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(uerr))
		}
		return err
	}
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
