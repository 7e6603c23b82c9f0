package scheduler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/models"
)

const testToken = "USDC"

// MockLedgerAPI реализует интерфейс scheduler.LedgerAPI
type MockLedgerAPI struct {
	mock.Mock
}

func (m *MockLedgerAPI) ProcessPayment(ctx context.Context, subscriber, token string) (models.MutationResult, error) {
	args := m.Called(ctx, subscriber, token)
	return args.Get(0).(models.MutationResult), args.Error(1)
}

func (m *MockLedgerAPI) GetUserSubscription(ctx context.Context, subscriber string) (*models.Subscription, error) {
	args := m.Called(ctx, subscriber)
	if res := args.Get(0); res != nil {
		return res.(*models.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestScheduler(api LedgerAPI) (*Scheduler, time.Time) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New(api, Config{SettlementToken: testToken}, logger)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	return s, now
}

func TestRunSweep(t *testing.T) {
	t.Run("успешное списание сдвигает локальную оценку", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), now.Add(-time.Minute), time.Hour)

		api.On("ProcessPayment", mock.Anything, "alice", testToken).
			Return(models.MutationResult{Success: true, ReferenceID: "ref-1"}, nil).Once()

		s.RunSweep(context.Background())

		entry, ok := s.Entry("alice")
		require.True(t, ok)
		assert.Equal(t, now.Add(-time.Minute).Add(time.Hour), entry.NextChargeTime)

		history := s.History("alice")
		require.Len(t, history, 1)
		assert.True(t, history[0].Success)
		assert.Equal(t, "ref-1", history[0].ReferenceID)

		stats := s.Stats()
		assert.Equal(t, int64(1), stats.TotalAttempts)
		assert.Equal(t, int64(1), stats.Successful)
		api.AssertExpectations(t)
	})

	t.Run("записи с ненаступившим сроком не трогаются", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), now.Add(time.Hour), time.Hour)

		s.RunSweep(context.Background())

		assert.Empty(t, s.History(""))
		api.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("временный сбой не сдвигает оценку", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		dueAt := now.Add(-time.Minute)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), dueAt, time.Hour)

		api.On("ProcessPayment", mock.Anything, "alice", testToken).
			Return(models.MutationResult{}, ledger.ErrTransient).Once()

		s.RunSweep(context.Background())

		entry, ok := s.Entry("alice")
		require.True(t, ok)
		assert.Equal(t, dueAt, entry.NextChargeTime, "transient failure must leave the entry due")
		assert.True(t, entry.Active)

		history := s.History("alice")
		require.Len(t, history, 1)
		assert.Equal(t, "transient", history[0].Error)
	})

	t.Run("отказ одной записи не блокирует остальные", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), now.Add(-time.Minute), time.Hour)
		s.Track("bob", "plan-1", decimal.NewFromInt(10), now.Add(-time.Minute), time.Hour)

		api.On("ProcessPayment", mock.Anything, "alice", testToken).
			Return(models.MutationResult{}, ledger.ErrInsufficientFunds).Once()
		api.On("ProcessPayment", mock.Anything, "bob", testToken).
			Return(models.MutationResult{Success: true, ReferenceID: "ref-2"}, nil).Once()

		s.RunSweep(context.Background())

		require.Len(t, s.History(""), 2)
		stats := s.Stats()
		assert.Equal(t, int64(1), stats.Successful)
		assert.Equal(t, int64(1), stats.Failed)
		assert.InDelta(t, 50.0, stats.SuccessRate, 0.01)
		api.AssertExpectations(t)
	})

	t.Run("исчезнувшая подписка деактивирует запись", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), now.Add(-time.Minute), time.Hour)

		api.On("ProcessPayment", mock.Anything, "alice", testToken).
			Return(models.MutationResult{}, ledger.ErrNoActiveSubscription).Once()

		s.RunSweep(context.Background())

		entry, ok := s.Entry("alice")
		require.True(t, ok)
		assert.False(t, entry.Active)

		// Деактивированная запись не попадает в следующий цикл.
		s.RunSweep(context.Background())
		require.Len(t, s.History("alice"), 1)
	})

	t.Run("обогнавшая оценка выправляется по леджеру", func(t *testing.T) {
		api := new(MockLedgerAPI)
		s, now := newTestScheduler(api)
		s.Track("alice", "plan-1", decimal.NewFromInt(10), now.Add(-time.Minute), time.Hour)

		authoritative := now.Add(30 * time.Minute)
		api.On("ProcessPayment", mock.Anything, "alice", testToken).
			Return(models.MutationResult{}, ledger.ErrNotDue).Once()
		api.On("GetUserSubscription", mock.Anything, "alice").
			Return(&models.Subscription{
				Subscriber:     "alice",
				PlanID:         "plan-1",
				Active:         true,
				NextChargeTime: authoritative,
			}, nil).Once()

		s.RunSweep(context.Background())

		entry, ok := s.Entry("alice")
		require.True(t, ok)
		assert.Equal(t, authoritative, entry.NextChargeTime)
		api.AssertExpectations(t)
	})
}

func TestReconcile(t *testing.T) {
	api := new(MockLedgerAPI)
	s, now := newTestScheduler(api)
	s.Track("alice", "plan-1", decimal.NewFromInt(10), now, time.Hour)
	s.Track("bob", "plan-1", decimal.NewFromInt(10), now, time.Hour)

	authoritative := now.Add(2 * time.Hour)
	api.On("GetUserSubscription", mock.Anything, "alice").
		Return(&models.Subscription{Active: true, NextChargeTime: authoritative}, nil).Once()
	api.On("GetUserSubscription", mock.Anything, "bob").
		Return(nil, ledger.ErrNoActiveSubscription).Once()

	s.Reconcile(context.Background())

	alice, ok := s.Entry("alice")
	require.True(t, ok)
	assert.Equal(t, authoritative, alice.NextChargeTime)

	bob, ok := s.Entry("bob")
	require.True(t, ok)
	assert.False(t, bob.Active)
	api.AssertExpectations(t)
}

func TestObserveEvents(t *testing.T) {
	api := new(MockLedgerAPI)
	s, now := newTestScheduler(api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan models.Event)
	s.ObserveEvents(ctx, events)

	events <- models.Event{
		Kind:            models.EventSubscribed,
		Subscriber:      "alice",
		PlanID:          "plan-1",
		Amount:          decimal.NewFromInt(10),
		IntervalSeconds: 3600,
		NextChargeTime:  now.Add(time.Hour),
	}

	require.Eventually(t, func() bool {
		_, ok := s.Entry("alice")
		return ok
	}, time.Second, 10*time.Millisecond)

	entry, _ := s.Entry("alice")
	assert.Equal(t, time.Hour, entry.Interval)
	assert.Equal(t, now.Add(time.Hour), entry.NextChargeTime)

	events <- models.Event{Kind: models.EventCancelled, Subscriber: "alice"}

	require.Eventually(t, func() bool {
		_, ok := s.Entry("alice")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	api := new(MockLedgerAPI)
	s, _ := newTestScheduler(api)

	s.Start(context.Background())
	assert.True(t, s.Stats().Running)

	// Повторный запуск — no-op.
	s.Start(context.Background())

	s.Stop()
	assert.False(t, s.Stats().Running)

	// Повторная остановка — no-op.
	s.Stop()
}
