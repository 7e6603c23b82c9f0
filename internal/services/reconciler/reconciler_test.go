package reconciler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicpay/subscrypt/internal/bank"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/models"
)

const testToken = "USDC"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// liveLedger прогоняет содержательный сценарий на живом леджере
// и возвращает его вместе с полным журналом.
func liveLedger(t *testing.T) (*ledger.Ledger, []models.Event) {
	t.Helper()

	b := bank.NewInMemoryBank()
	l := ledger.New(ledger.Config{AcceptedTokens: []string{testToken}}, b, nil, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	ctx := context.Background()
	basic, err := l.CreatePlan(ctx, "merchant-1", "basic", decimal.NewFromInt(10), time.Minute, true, 10)
	require.NoError(t, err)
	premium, err := l.CreatePlan(ctx, "merchant-2", "premium", decimal.NewFromInt(25), time.Hour, false, 5)
	require.NoError(t, err)

	for _, user := range []string{"alice", "bob"} {
		b.Mint(testToken, user, decimal.NewFromInt(1000))
		b.Approve(testToken, user, decimal.NewFromInt(1000))
	}

	_, err = l.Subscribe(ctx, "alice", basic.PlanID, testToken)
	require.NoError(t, err)
	_, err = l.Subscribe(ctx, "bob", premium.PlanID, testToken)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = l.ProcessPayment(ctx, "alice", testToken)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = l.ProcessPayment(ctx, "alice", testToken)
	require.NoError(t, err)

	require.NoError(t, l.CancelSubscription(ctx, "bob"))

	return l, l.EventsSince(0)
}

func TestReplay_MatchesLedgerState(t *testing.T) {
	l, events := liveLedger(t)

	r := New(nil, testLogger())
	r.Replay(events)

	assert.Equal(t, l.GetGlobalStats(), r.GlobalStats())
	for _, merchant := range []string{"merchant-1", "merchant-2"} {
		assert.Equal(t, l.GetMerchantStats(merchant), r.MerchantStats(merchant),
			"merchant %s stats must match after replay", merchant)
	}

	for _, plan := range l.ListPlans() {
		got, ok := r.Plan(plan.PlanID)
		require.True(t, ok)
		assert.Equal(t, plan, got)
	}

	aliceWant, err := l.GetUserSubscription("alice")
	require.NoError(t, err)
	aliceGot, ok := r.ActiveSubscription("alice")
	require.True(t, ok)
	assert.Equal(t, aliceWant, aliceGot)

	_, ok = r.ActiveSubscription("bob")
	assert.False(t, ok, "cancelled subscription must not survive replay")

	assert.Equal(t, events[len(events)-1].Seq, r.LastSeq())
}

func TestHandleEvent_IdempotentBySeq(t *testing.T) {
	_, events := liveLedger(t)

	r := New(nil, testLogger())
	for _, ev := range events {
		require.NoError(t, r.HandleEvent(ev))
	}
	want := r.GlobalStats()

	// Повторная доставка всей истории ничего не меняет.
	for _, ev := range events {
		require.NoError(t, r.HandleEvent(ev))
	}
	assert.Equal(t, want, r.GlobalStats())
	assert.Equal(t, events[len(events)-1].Seq, r.LastSeq())
}

func TestListeners(t *testing.T) {
	t.Run("слушатель вида получает только свой вид", func(t *testing.T) {
		r := New(nil, testLogger())
		id, ch := r.RegisterListener(models.EventCharged, 4)
		defer r.RemoveListener(models.EventCharged, id)

		require.NoError(t, r.HandleEvent(models.Event{Seq: 1, Kind: models.EventPlanCreated, PlanID: "p1"}))
		require.NoError(t, r.HandleEvent(models.Event{Seq: 2, Kind: models.EventCharged, Subscriber: "alice",
			Amount: decimal.NewFromInt(10)}))

		select {
		case ev := <-ch:
			assert.Equal(t, models.EventCharged, ev.Kind)
		default:
			t.Fatal("expected a charged event")
		}
		select {
		case ev := <-ch:
			t.Fatalf("unexpected extra event: %v", ev.Kind)
		default:
		}
	})

	t.Run("слушатель пользователя фильтрует чужие события", func(t *testing.T) {
		r := New(nil, testLogger())
		id, ch := r.WatchUserSubscription("alice", 4)
		defer r.RemoveListener("*", id)

		require.NoError(t, r.HandleEvent(models.Event{Seq: 1, Kind: models.EventCharged, Subscriber: "bob"}))
		require.NoError(t, r.HandleEvent(models.Event{Seq: 2, Kind: models.EventCharged, Subscriber: "alice"}))

		select {
		case ev := <-ch:
			assert.Equal(t, "alice", ev.Subscriber)
		default:
			t.Fatal("expected an event for alice")
		}
		select {
		case <-ch:
			t.Fatal("bob's event must be filtered out")
		default:
		}
	})

	t.Run("переполненный буфер вытесняет самое старое событие", func(t *testing.T) {
		r := New(nil, testLogger())
		id, ch := r.RegisterListener("*", 2)
		defer r.RemoveListener("*", id)

		for seq := int64(1); seq <= 3; seq++ {
			require.NoError(t, r.HandleEvent(models.Event{Seq: seq, Kind: models.EventCharged}))
		}

		first := <-ch
		second := <-ch
		assert.Equal(t, int64(2), first.Seq, "oldest event must have been dropped")
		assert.Equal(t, int64(3), second.Seq)
	})

	t.Run("повторная доставка не раздается слушателям", func(t *testing.T) {
		r := New(nil, testLogger())
		id, ch := r.RegisterListener("*", 4)
		defer r.RemoveListener("*", id)

		ev := models.Event{Seq: 1, Kind: models.EventCharged}
		require.NoError(t, r.HandleEvent(ev))
		require.NoError(t, r.HandleEvent(ev))

		<-ch
		select {
		case <-ch:
			t.Fatal("duplicate delivery must not reach listeners")
		default:
		}
	})

	t.Run("снятие регистрации", func(t *testing.T) {
		r := New(nil, testLogger())
		id, _ := r.RegisterListener(models.EventCharged, 1)
		assert.Equal(t, 1, r.ListenerCount())
		r.RemoveListener(models.EventCharged, id)
		assert.Equal(t, 0, r.ListenerCount())
		// Незнакомый идентификатор игнорируется.
		r.RemoveListener(models.EventCharged, 99)
	})
}

type stubArchive struct {
	events []models.Event
	err    error
}

func (s *stubArchive) ListRecentEvents(_ context.Context, _ models.EventFilter) ([]models.Event, error) {
	return s.events, s.err
}

func TestGetRecentEvents(t *testing.T) {
	t.Run("архив не настроен", func(t *testing.T) {
		r := New(nil, testLogger())
		_, err := r.GetRecentEvents(context.Background(), models.EventFilter{})
		require.Error(t, err)
	})

	t.Run("выборка из архива", func(t *testing.T) {
		archive := &stubArchive{events: []models.Event{{Seq: 7, Kind: models.EventCharged}}}
		r := New(archive, testLogger())
		events, err := r.GetRecentEvents(context.Background(), models.EventFilter{Subscriber: "alice"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, int64(7), events[0].Seq)
	})
}
