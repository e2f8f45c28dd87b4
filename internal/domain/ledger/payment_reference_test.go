package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReference(t *testing.T) *PaymentReference {
	t.Helper()
	ref, err := NewPaymentReference(uuid.New(), "MXI-ORDER-1", decimal.NewFromInt(100), "usd", "usdttrc20", decimal.NewFromInt(250))
	require.NoError(t, err)
	return ref
}

func TestNewPaymentReference(t *testing.T) {
	t.Run("creates pending reference", func(t *testing.T) {
		ref := newTestReference(t)
		assert.Equal(t, PaymentStatusPending, ref.Status)
		assert.False(t, ref.Credited)
		assert.True(t, ref.IsDirectTransfer())
	})

	t.Run("rejects invalid order id", func(t *testing.T) {
		_, err := NewPaymentReference(uuid.New(), "a b", decimal.NewFromInt(1), "usd", "", decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := NewPaymentReference(uuid.New(), "ORDER-2", decimal.Zero, "usd", "", decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentStatusPending, PaymentStatusWaiting, true},
		{PaymentStatusPending, PaymentStatusFinished, true},
		{PaymentStatusWaiting, PaymentStatusConfirming, true},
		{PaymentStatusWaiting, PaymentStatusPending, false},
		{PaymentStatusConfirming, PaymentStatusWaiting, false},
		{PaymentStatusConfirming, PaymentStatusExpired, true},
		{PaymentStatusCreditFailed, PaymentStatusFinished, true},
		{PaymentStatusCreditFailed, PaymentStatusPending, false},
		{PaymentStatusCreditFailed, PaymentStatusFailed, false},
		{PaymentStatusFinished, PaymentStatusConfirmed, false},
		{PaymentStatusFailed, PaymentStatusFinished, false},
		{PaymentStatusExpired, PaymentStatusWaiting, false},
		{PaymentStatusCancelled, PaymentStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentReference_TransitionTo(t *testing.T) {
	t.Run("emits status change event", func(t *testing.T) {
		ref := newTestReference(t)
		changed, err := ref.TransitionTo(PaymentStatusWaiting, "gateway")
		require.NoError(t, err)
		assert.True(t, changed)
		events := ref.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypePaymentStatusChanged, events[0].EventType())
	})

	t.Run("same state is a no-op", func(t *testing.T) {
		ref := newTestReference(t)
		changed, err := ref.TransitionTo(PaymentStatusPending, "gateway")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, ref.GetDomainEvents())
	})

	t.Run("terminal states reject every signal", func(t *testing.T) {
		for _, terminal := range []PaymentStatus{
			PaymentStatusConfirmed, PaymentStatusFinished,
			PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled,
		} {
			ref := newTestReference(t)
			ref.Status = terminal
			_, err := ref.TransitionTo(PaymentStatusWaiting, "gateway")
			assert.True(t, errors.Is(err, shared.ErrAlreadyTerminal), terminal)
		}
	})

	t.Run("backwards move is invalid state", func(t *testing.T) {
		ref := newTestReference(t)
		ref.Status = PaymentStatusConfirming
		_, err := ref.TransitionTo(PaymentStatusWaiting, "gateway")
		assert.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))
	})
}

func TestPaymentReference_SettleAndMarkCredited(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("credits once", func(t *testing.T) {
		ref := newTestReference(t)
		require.NoError(t, ref.SettleAndMarkCredited(PaymentStatusFinished, decimal.NewFromInt(250), CreditSourceGateway, now))
		assert.True(t, ref.Credited)
		assert.Equal(t, PaymentStatusFinished, ref.Status)
		assert.Equal(t, now, *ref.CreditedAt)

		err := ref.SettleAndMarkCredited(PaymentStatusConfirmed, decimal.NewFromInt(250), CreditSourceAdmin, now)
		assert.True(t, errors.Is(err, shared.ErrAlreadyTerminal))
	})

	t.Run("gateway cannot reopen failure", func(t *testing.T) {
		ref := newTestReference(t)
		ref.Status = PaymentStatusExpired
		err := ref.SettleAndMarkCredited(PaymentStatusFinished, decimal.NewFromInt(1), CreditSourceGateway, now)
		assert.True(t, errors.Is(err, shared.ErrAlreadyTerminal))
		assert.False(t, ref.Credited)
	})

	t.Run("admin may settle an expired reference", func(t *testing.T) {
		ref := newTestReference(t)
		ref.Status = PaymentStatusExpired
		require.NoError(t, ref.SettleAndMarkCredited(PaymentStatusConfirmed, decimal.NewFromInt(240), CreditSourceAdmin, now))
		assert.Equal(t, PaymentStatusConfirmed, ref.Status)
		assert.True(t, decimal.NewFromInt(240).Equal(ref.CreditedAssetAmount))
	})

	t.Run("retry leaves credit_failed", func(t *testing.T) {
		ref := newTestReference(t)
		require.NoError(t, ref.MarkCreditFailed("account store unavailable"))
		assert.Equal(t, PaymentStatusCreditFailed, ref.Status)
		assert.False(t, ref.Status.IsTerminal())

		require.NoError(t, ref.SettleAndMarkCredited(PaymentStatusFinished, decimal.NewFromInt(250), CreditSourceRetry, now))
		assert.Equal(t, PaymentStatusFinished, ref.Status)
		assert.Empty(t, ref.LastError)
	})

	t.Run("rejects non success status", func(t *testing.T) {
		ref := newTestReference(t)
		err := ref.SettleAndMarkCredited(PaymentStatusWaiting, decimal.NewFromInt(1), CreditSourceGateway, now)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestPaymentReference_AssignGatewayPaymentID(t *testing.T) {
	ref := newTestReference(t)
	require.NoError(t, ref.AssignGatewayPaymentID("5077125051"))
	require.NoError(t, ref.AssignGatewayPaymentID("5077125051"))
	err := ref.AssignGatewayPaymentID("999")
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	assert.Equal(t, "5077125051", *ref.GatewayPaymentID)
}

func TestNormalizeTxHash(t *testing.T) {
	evm := "0x" + "AB12" + strings.Repeat("0", 60)
	got, err := NormalizeTxHash("  " + evm + " ")
	require.NoError(t, err)
	assert.Equal(t, "0xab12"+strings.Repeat("0", 60), got)

	bare := "c0ffee0000000000000000000000000000000000000000000000000000000000"
	got, err = NormalizeTxHash(bare)
	require.NoError(t, err)
	assert.Equal(t, bare, got)

	for _, bad := range []string{"", "0x123", "zz" + bare[2:], bare + "0"} {
		_, err := NormalizeTxHash(bad)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput), bad)
	}
}

func TestMapGatewayStatus(t *testing.T) {
	tests := map[string]PaymentStatus{
		"waiting":        PaymentStatusWaiting,
		"partially_paid": PaymentStatusWaiting,
		"Confirming":     PaymentStatusConfirming,
		"sending":        PaymentStatusConfirming,
		"finished":       PaymentStatusFinished,
		"refunded":       PaymentStatusCancelled,
		"expired":        PaymentStatusExpired,
	}
	for in, want := range tests {
		got, err := MapGatewayStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := MapGatewayStatus("teleported")
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}
