package services

import (
	"testing"
	"time"

	"metering/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_ApplyDebit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	service := NewLedgerService()

	tests := []struct {
		name             string
		balance          *entities.UserBalance
		amount           int64
		wantErr          error
		wantApplied      int64
		wantRemaining    int64
		wantInsufficient bool
	}{
		{
			name:          "full debit",
			balance:       &entities.UserBalance{UserID: "u1", RemainingMinutes: 80, TotalPurchased: 80},
			amount:        3,
			wantApplied:   3,
			wantRemaining: 77,
		},
		{
			name:             "debit clamps to available balance",
			balance:          &entities.UserBalance{UserID: "u1", RemainingMinutes: 3, TotalPurchased: 3},
			amount:           5,
			wantApplied:      3,
			wantRemaining:    0,
			wantInsufficient: true,
		},
		{
			name:             "debit against empty balance applies nothing",
			balance:          &entities.UserBalance{UserID: "u1"},
			amount:           2,
			wantApplied:      0,
			wantRemaining:    0,
			wantInsufficient: true,
		},
		{
			name:    "zero amount rejected",
			balance: &entities.UserBalance{UserID: "u1", RemainingMinutes: 10, TotalPurchased: 10},
			amount:  0,
			wantErr: entities.ErrInvalidAmount,
		},
		{
			name:    "negative amount rejected",
			balance: &entities.UserBalance{UserID: "u1", RemainingMinutes: 10, TotalPurchased: 10},
			amount:  -4,
			wantErr: entities.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			change, err := service.ApplyDebit(tt.balance, tt.amount, "ref-1", now)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantApplied, change.AmountApplied)
			assert.Equal(t, tt.wantInsufficient, change.Insufficient)
			assert.Equal(t, tt.wantRemaining, change.NewBalance.RemainingMinutes)
			assert.NoError(t, change.NewBalance.Validate())

			require.NotNil(t, change.Entry)
			assert.Equal(t, entities.EntryKindDebit, change.Entry.Kind)
			assert.Equal(t, "ref-1", change.Entry.ReferenceID)
			assert.Equal(t, tt.wantRemaining, change.Entry.ResultingBalance)
			assert.NoError(t, change.Entry.Validate())
		})
	}
}

func TestLedgerService_ApplyCredit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	service := NewLedgerService()

	t.Run("credit adds to balance and lifetime purchases", func(t *testing.T) {
		t.Parallel()
		balance := &entities.UserBalance{UserID: "u1", RemainingMinutes: 5, TotalPurchased: 20, TotalConsumed: 15}

		change, err := service.ApplyCredit(balance, 80, "pay_1", now)
		require.NoError(t, err)

		assert.Equal(t, int64(85), change.NewBalance.RemainingMinutes)
		assert.Equal(t, int64(100), change.NewBalance.TotalPurchased)
		assert.Equal(t, int64(15), change.NewBalance.TotalConsumed)
		assert.NoError(t, change.NewBalance.Validate())

		require.NotNil(t, change.Entry)
		assert.Equal(t, entities.EntryKindCredit, change.Entry.Kind)
		assert.Equal(t, "pay_1", change.Entry.ReferenceID)
		assert.NoError(t, change.Entry.Validate())
	})

	t.Run("non-positive amounts rejected", func(t *testing.T) {
		t.Parallel()
		balance := &entities.UserBalance{UserID: "u1"}

		_, err := service.ApplyCredit(balance, 0, "pay_2", now)
		assert.ErrorIs(t, err, entities.ErrInvalidAmount)

		_, err = service.ApplyCredit(balance, -1, "pay_2", now)
		assert.ErrorIs(t, err, entities.ErrInvalidAmount)
	})
}

func TestLedgerService_DebitCreditSequenceKeepsInvariant(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	service := NewLedgerService()
	balance := &entities.UserBalance{UserID: "u1"}

	credit, err := service.ApplyCredit(balance, 80, "pay_1", now)
	require.NoError(t, err)
	balance = credit.NewBalance

	debit, err := service.ApplyDebit(balance, 3, "sess-1", now)
	require.NoError(t, err)
	balance = debit.NewBalance

	assert.Equal(t, int64(77), balance.RemainingMinutes)
	assert.Equal(t, balance.TotalPurchased-balance.TotalConsumed, balance.RemainingMinutes)
	assert.NoError(t, balance.Validate())
}
