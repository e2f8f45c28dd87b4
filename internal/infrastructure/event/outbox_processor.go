package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes batch size and retention
type OutboxProcessorConfig struct {
	BatchSize        int
	CleanupRetention time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		CleanupRetention: 7 * 24 * time.Hour,
	}
}

// OutboxProcessor relays committed outbox entries to the event bus. The
// scheduler drives ProcessBatch and Cleanup on its own cadence.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultOutboxProcessorConfig().BatchSize
	}
	return &OutboxProcessor{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		config:     config,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch delivers one batch of pending entries and one batch of
// retryable entries, returning how many were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, err
	}
	retryable, err := p.repo.FindRetryable(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		return 0, err
	}

	entries := append(pending, retryable...)
	if len(entries) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range claimed {
		if p.deliver(ctx, entry) {
			delivered++
		}
	}
	return delivered, nil
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType))

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.bus.Publish(ctx, event)
	}
	if err != nil {
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("outbox entry dead-lettered",
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError))
		} else {
			log.Error("outbox delivery failed", zap.Error(err))
		}
		if uerr := p.repo.Update(ctx, entry); uerr != nil {
			log.Error("failed to record outbox failure", zap.Error(uerr))
		}
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to mark outbox entry sent", zap.Error(err))
		return false
	}
	return true
}

// Cleanup deletes sent entries older than the retention window
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleaned up", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
