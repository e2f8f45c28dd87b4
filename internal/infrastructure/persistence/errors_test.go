package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTranslateWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "postgres constraint name selects the rule",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: models.IndexPaymentTxHash},
			want: shared.ErrDuplicateProof,
		},
		{
			name: "postgres order id violation",
			err:  fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: models.IndexPaymentOrderID}),
			want: shared.ErrAlreadyExists,
		},
		{
			name: "sqlite column list selects the rule",
			err:  errors.New("UNIQUE constraint failed: payment_references.tx_hash"),
			want: shared.ErrDuplicateProof,
		},
		{
			name: "unlisted unique violation",
			err:  errors.New("UNIQUE constraint failed: accounts.id"),
			want: shared.ErrAlreadyExists,
		},
		{
			name: "translated gorm duplicate key",
			err:  gorm.ErrDuplicatedKey,
			want: shared.ErrAlreadyExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateWriteError(tt.err, paymentUniqueRules...), tt.want)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		fk := &pgconn.PgError{Code: "23503", ConstraintName: "fk_anything"}
		assert.Same(t, fk, translateWriteError(fk, paymentUniqueRules...))
		assert.NoError(t, translateWriteError(nil))
	})
}

func TestGormPaymentReferenceRepository_SaveStatement(t *testing.T) {
	t.Run("conditions on id version and status", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentReferenceRepository(db)

		ref := newTestPayment(t, newTestAccount(t).ID, "MXI-MOCK-0001")
		ref.MarkPersisted()
		_, err := ref.TransitionTo(ledger.PaymentStatusWaiting, "test")
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "payment_references" SET .+ WHERE id = \$\d+ AND version = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.Save(context.Background(), ref, ledger.PaymentStatusPending)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, ref.PersistedVersion())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tx hash constraint maps to duplicate proof", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentReferenceRepository(db)

		ref := newTestPayment(t, newTestAccount(t).ID, "MXI-MOCK-0002")
		ref.MarkPersisted()
		require.NoError(t, ref.AttachTxHash("0x9f2c4a1be0d37c5a8e61f0b2d4c7a9e3f1b5d8c2a6e4f7b9c1d3e5f7a9b2c4d6"))

		mock.ExpectExec(`UPDATE "payment_references" SET`).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: models.IndexPaymentTxHash})

		err := repo.Save(context.Background(), ref, ledger.PaymentStatusPending)
		assert.ErrorIs(t, err, shared.ErrDuplicateProof)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful save advances the persisted version", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentReferenceRepository(db)

		ref := newTestPayment(t, newTestAccount(t).ID, "MXI-MOCK-0003")
		ref.MarkPersisted()
		_, err := ref.TransitionTo(ledger.PaymentStatusConfirming, "test")
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "payment_references" SET`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Save(context.Background(), ref, ledger.PaymentStatusPending))
		assert.Equal(t, ref.Version, ref.PersistedVersion())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
