package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(eventType string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, ledger.AggregateTypeAccount, uuid.New())
	return &e
}

func TestRecordingHandler(t *testing.T) {
	h := NewRecordingHandler(ledger.EventTypeAccountRegistered, ledger.EventTypePaymentCredited)
	assert.Equal(t, []string{ledger.EventTypeAccountRegistered, ledger.EventTypePaymentCredited}, h.EventTypes())

	require.NoError(t, h.Handle(context.Background(), newEvent(ledger.EventTypeAccountRegistered)))
	require.NoError(t, h.Handle(context.Background(), newEvent(ledger.EventTypePaymentCredited)))
	require.NoError(t, h.Handle(context.Background(), newEvent(ledger.EventTypePaymentCredited)))

	assert.Len(t, h.Handled(), 3)
	assert.Equal(t, 1, h.Count(ledger.EventTypeAccountRegistered))
	assert.Equal(t, 2, h.Count(ledger.EventTypePaymentCredited))

	boom := errors.New("boom")
	h.FailWith(boom)
	assert.ErrorIs(t, h.Handle(context.Background(), newEvent(ledger.EventTypeVestingReleased)), boom)
	assert.Len(t, h.Handled(), 4)
}
