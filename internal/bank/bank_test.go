package bank

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBank_TransferFrom(t *testing.T) {
	tests := []struct {
		name      string
		balance   int64
		allowance int64
		amount    int64
		wantErr   error
	}{
		{
			name:      "успешный перевод",
			balance:   100,
			allowance: 50,
			amount:    30,
		},
		{
			name:      "недостаточно разрешения",
			balance:   100,
			allowance: 10,
			amount:    30,
			wantErr:   ErrInsufficientAllowance,
		},
		{
			name:      "недостаточно средств",
			balance:   10,
			allowance: 50,
			amount:    30,
			wantErr:   ErrInsufficientFunds,
		},
		{
			name:    "пустой счёт",
			amount:  1,
			wantErr: ErrInsufficientAllowance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewInMemoryBank()
			b.Mint("USDC", "payer", decimal.NewFromInt(tt.balance))
			b.Approve("USDC", "payer", decimal.NewFromInt(tt.allowance))

			err := b.TransferFrom(context.Background(), "USDC", "payer", "payee", decimal.NewFromInt(tt.amount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				// Неуспешный перевод не меняет счета.
				balance, _ := b.BalanceOf(context.Background(), "USDC", "payer")
				assert.True(t, balance.Equal(decimal.NewFromInt(tt.balance)))
				allowance, _ := b.Allowance(context.Background(), "USDC", "payer")
				assert.True(t, allowance.Equal(decimal.NewFromInt(tt.allowance)))
				return
			}
			require.NoError(t, err)

			balance, _ := b.BalanceOf(context.Background(), "USDC", "payer")
			assert.True(t, balance.Equal(decimal.NewFromInt(tt.balance-tt.amount)))
			allowance, _ := b.Allowance(context.Background(), "USDC", "payer")
			assert.True(t, allowance.Equal(decimal.NewFromInt(tt.allowance-tt.amount)))
			payee, _ := b.BalanceOf(context.Background(), "USDC", "payee")
			assert.True(t, payee.Equal(decimal.NewFromInt(tt.amount)))
		})
	}
}

func TestInMemoryBank_TokensAreIsolated(t *testing.T) {
	b := NewInMemoryBank()
	b.Mint("USDC", "payer", decimal.NewFromInt(100))
	b.Approve("USDC", "payer", decimal.NewFromInt(100))

	err := b.TransferFrom(context.Background(), "DAI", "payer", "payee", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	balance, _ := b.BalanceOf(context.Background(), "DAI", "payer")
	assert.True(t, balance.IsZero())
}
