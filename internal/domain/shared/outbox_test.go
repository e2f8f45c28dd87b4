package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	BaseDomainEvent
}

func TestNewOutboxEntry(t *testing.T) {
	aggID := uuid.New()
	event := &stubEvent{BaseDomainEvent: NewBaseDomainEvent("PaymentCredited", "PaymentReference", aggID)}

	entry := NewOutboxEntry(event, []byte(`{"k":"v"}`))

	assert.Equal(t, event.EventID(), entry.EventID)
	assert.Equal(t, "PaymentCredited", entry.EventType)
	assert.Equal(t, aggID, entry.AggregateID)
	assert.Equal(t, "PaymentReference", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusFailed} {
		entry := &OutboxEntry{Status: status}
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
	}

	for _, status := range []OutboxStatus{OutboxStatusProcessing, OutboxStatusSent, OutboxStatusDead} {
		entry := &OutboxEntry{Status: status}
		assert.Error(t, entry.MarkProcessing())
	}
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("resets dead entry", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "kafka down",
			UpdatedAt:  time.Now().Add(-time.Minute),
		}

		require.NoError(t, entry.ResetForRetry())
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Zero(t, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("rejects live entries", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{Status: status}
			err := entry.ResetForRetry()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "only dead entries")
		}
	})
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("dead after max retries", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, RetryCount: 4, MaxRetries: 5}

		entry.MarkFailed("final error")

		assert.True(t, entry.IsDead())
		assert.Equal(t, 5, entry.RetryCount)
		assert.Equal(t, "final error", entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("backs off exponentially", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

		expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
		for i, want := range expected {
			entry.MarkFailed("boom")
			assert.Equal(t, OutboxStatusFailed, entry.Status)
			assert.Equal(t, i+1, entry.RetryCount)
			require.NotNil(t, entry.NextRetryAt)
			assert.Equal(t, want, entry.NextRetryAt.Sub(entry.UpdatedAt))
			assert.True(t, entry.CanRetry())
		}
	})
}
