package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("builds edges up to three levels", func(t *testing.T) {
		h := newHarness(t)
		root := h.register(t, nil)
		l1 := h.register(t, &root)
		l2 := h.register(t, &l1)
		l3 := h.register(t, &l2)
		l4 := h.register(t, &l3)

		upline := 0
		for _, e := range h.store.edges {
			if e.ReferredID == l4 {
				upline++
				assert.NotEqual(t, root, e.ReferrerID, "edges stop at level three")
			}
		}
		assert.Equal(t, 3, upline)

		summary, err := h.accounts.ListReferrals(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, summary.Levels)
		assert.Equal(t, []uuid.UUID{l1}, summary.Direct)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		h := newHarness(t)
		id := h.register(t, nil)
		_, err := h.accounts.Register(ctx, RegisterCommand{AccountID: id})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("unknown referrer", func(t *testing.T) {
		h := newHarness(t)
		missing := uuid.New()
		_, err := h.accounts.Register(ctx, RegisterCommand{AccountID: uuid.New(), ReferrerID: &missing})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.Empty(t, h.store.accounts)
	})

	t.Run("self referral", func(t *testing.T) {
		h := newHarness(t)
		id := uuid.New()
		_, err := h.accounts.Register(ctx, RegisterCommand{AccountID: id, ReferrerID: &id})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestAccountService_AdminFlags(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, nil)

	_, err := h.accounts.SetKYCApproved(ctx, ledger.AdminCapability{}, id, true)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.ErrorIs(t, h.accounts.SetLaunchFlag(ctx, ledger.AdminCapability{}, true), shared.ErrForbidden)

	dto, err := h.accounts.SetKYCApproved(ctx, h.admin, id, true)
	require.NoError(t, err)
	assert.True(t, dto.KYCApproved)

	require.NoError(t, h.accounts.SetLaunchFlag(ctx, h.admin, true))
	launched, err := h.accounts.IsLaunched(ctx)
	require.NoError(t, err)
	assert.True(t, launched)

	got, err := h.accounts.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.TotalBalance.IsZero())
	assert.Equal(t, harnessStart, got.AsOf)
}
