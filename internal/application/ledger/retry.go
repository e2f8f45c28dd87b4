package ledger

import (
	"context"
	"errors"

	"github.com/mxi/presale/internal/domain/shared"
	"go.uber.org/zap"
)

// retryOnConflict re-runs fn while it reports a lost compare-and-swap, up to
// attempts times. Other errors are returned immediately.
func retryOnConflict(ctx context.Context, logger *zap.Logger, op string, attempts int, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("Concurrency conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt))
	}
	return err
}
