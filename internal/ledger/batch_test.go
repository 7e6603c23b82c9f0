package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRelayer = "relayer-1"

func relayerConfig() Config {
	return Config{
		FeeMEnabled:    true,
		RelayerAddress: testRelayer,
	}
}

func TestProcessBatchPayments_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		relayer string
	}{
		{
			name:    "путь релеера выключен",
			cfg:     Config{RelayerAddress: testRelayer},
			relayer: testRelayer,
		},
		{
			name:    "чужой релеер",
			cfg:     relayerConfig(),
			relayer: "intruder",
		},
		{
			name: "пустой релеер",
			cfg:  relayerConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			_, err := f.ledger.ProcessBatchPayments(context.Background(), tt.relayer,
				[]string{"alice"}, testToken, nil)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestProcessBatchPayments_Validation(t *testing.T) {
	f := newFixture(t, relayerConfig())

	_, err := f.ledger.ProcessBatchPayments(context.Background(), testRelayer,
		nil, testToken, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.ledger.ProcessBatchPayments(context.Background(), testRelayer,
		[]string{"alice", "bob"}, testToken, []decimal.Decimal{decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrValidation)
}

func TestProcessBatchPayments_PartialFailure(t *testing.T) {
	f := newFixture(t, relayerConfig())
	plan := f.createPlan(t, 10, time.Minute, 10)

	// alice платит успешно, у bob кончились средства, carol без подписки.
	f.bank.Mint(testToken, "alice", decimal.NewFromInt(100))
	f.bank.Approve(testToken, "alice", decimal.NewFromInt(100))
	f.bank.Mint(testToken, "bob", decimal.NewFromInt(10))
	f.bank.Approve(testToken, "bob", decimal.NewFromInt(100))

	_, err := f.ledger.Subscribe(context.Background(), "alice", plan.PlanID, testToken)
	require.NoError(t, err)
	_, err = f.ledger.Subscribe(context.Background(), "bob", plan.PlanID, testToken)
	require.NoError(t, err)

	f.advance(time.Minute)
	results, err := f.ledger.ProcessBatchPayments(context.Background(), testRelayer,
		[]string{"alice", "bob", "carol"}, testToken, nil)
	require.NoError(t, err, "a failing entry must not fail the batch")
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, "alice", results[0].Subscriber)
	assert.True(t, results[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.NotEmpty(t, results[0].ReferenceID)

	assert.False(t, results[1].Success)
	assert.Equal(t, "insufficient_funds", results[1].Error)

	assert.False(t, results[2].Success)
	assert.Equal(t, "no_active_subscription", results[2].Error)

	// Успешная запись продвинула состояние, неуспешные — нет.
	aliceSub, err := f.ledger.GetUserSubscription("alice")
	require.NoError(t, err)
	assert.True(t, aliceSub.TotalPaid.Equal(decimal.NewFromInt(20)))

	bobSub, err := f.ledger.GetUserSubscription("bob")
	require.NoError(t, err)
	assert.True(t, bobSub.TotalPaid.Equal(decimal.NewFromInt(10)))

	stats := f.ledger.GetGlobalStats()
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(10)))
}

func TestProcessBatchPayments_AmountHintsAreAdvisory(t *testing.T) {
	f := newFixture(t, relayerConfig())
	plan := f.createPlan(t, 10, time.Minute, 10)
	f.bank.Mint(testToken, "alice", decimal.NewFromInt(100))
	f.bank.Approve(testToken, "alice", decimal.NewFromInt(100))

	_, err := f.ledger.Subscribe(context.Background(), "alice", plan.PlanID, testToken)
	require.NoError(t, err)

	f.advance(time.Minute)
	results, err := f.ledger.ProcessBatchPayments(context.Background(), testRelayer,
		[]string{"alice"}, testToken, []decimal.Decimal{decimal.NewFromInt(999)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Списывается цена плана, а не сумма из запроса.
	assert.True(t, results[0].Amount.Equal(decimal.NewFromInt(10)))
}
