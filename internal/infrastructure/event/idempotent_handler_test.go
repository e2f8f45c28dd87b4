package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mxi/presale/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Unmark(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error { return nil }

func TestIdempotentHandler(t *testing.T) {
	cfg := shared.DefaultIdempotencyConfig()
	ctx := context.Background()

	t.Run("first delivery is handled", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := &recordingHandler{}
		ev := balanceEvent()
		store.On("MarkProcessed", ctx, ev.EventType()+":"+ev.EventID().String(), cfg.TTL).Return(true, nil)

		require.NoError(t, NewIdempotentHandler(inner, store, cfg, nil).Handle(ctx, ev))
		assert.Len(t, inner.seen, 1)
		store.AssertExpectations(t)
	})

	t.Run("redelivery is skipped", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := &recordingHandler{}
		store.On("MarkProcessed", ctx, mock.Anything, cfg.TTL).Return(false, nil)

		require.NoError(t, NewIdempotentHandler(inner, store, cfg, nil).Handle(ctx, balanceEvent()))
		assert.Empty(t, inner.seen)
	})

	t.Run("failure releases the key", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := &recordingHandler{err: errors.New("conflict")}
		ev := balanceEvent()
		key := ev.EventType() + ":" + ev.EventID().String()
		store.On("MarkProcessed", ctx, key, cfg.TTL).Return(true, nil)
		store.On("Unmark", ctx, key).Return(nil)

		assert.Error(t, NewIdempotentHandler(inner, store, cfg, nil).Handle(ctx, ev))
		store.AssertExpectations(t)
	})

	t.Run("store outage still processes", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := &recordingHandler{}
		store.On("MarkProcessed", ctx, mock.Anything, cfg.TTL).Return(false, errors.New("redis down"))

		require.NoError(t, NewIdempotentHandler(inner, store, cfg, nil).Handle(ctx, balanceEvent()))
		assert.Len(t, inner.seen, 1)
	})

	t.Run("disabled bypasses the store", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := &recordingHandler{}
		disabled := cfg
		disabled.Enabled = false

		require.NoError(t, NewIdempotentHandler(inner, store, disabled, nil).Handle(ctx, balanceEvent()))
		assert.Len(t, inner.seen, 1)
		store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}
