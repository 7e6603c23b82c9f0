package ledgerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/models"
)

func TestProcessPayment(t *testing.T) {
	t.Run("успешное списание", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/payments/process", r.URL.Path)

			var req models.DummyCharge
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "alice", req.Subscriber)
			assert.Equal(t, "USDC", req.Token)

			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"data":   models.MutationResult{Success: true, ReferenceID: "ref-1"},
			})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second)
		res, err := client.ProcessPayment(context.Background(), "alice", "USDC")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "ref-1", res.ReferenceID)
	})

	t.Run("классифицированный отказ восстанавливается из конверта", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "Error",
				"error":  "not_due",
			})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second)
		_, err := client.ProcessPayment(context.Background(), "alice", "USDC")
		require.ErrorIs(t, err, ledger.ErrNotDue)
		assert.False(t, ledger.IsTransient(err))
	})

	t.Run("недоступный сервис — временный сбой", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		srv.Close() // соединение будет отвергнуто

		client := New(srv.URL, time.Second)
		_, err := client.ProcessPayment(context.Background(), "alice", "USDC")
		require.Error(t, err)
		assert.True(t, ledger.IsTransient(err))
	})

	t.Run("битый ответ — временный сбой", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second)
		_, err := client.ProcessPayment(context.Background(), "alice", "USDC")
		require.Error(t, err)
		assert.True(t, ledger.IsTransient(err))
	})
}

func TestGetUserSubscription(t *testing.T) {
	t.Run("успешное чтение", func(t *testing.T) {
		next := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/subscriptions/alice", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"data": models.Subscription{
					Subscriber:     "alice",
					PlanID:         "plan-1",
					Active:         true,
					NextChargeTime: next,
				},
			})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second)
		sub, err := client.GetUserSubscription(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "plan-1", sub.PlanID)
		assert.True(t, next.Equal(sub.NextChargeTime))
	})

	t.Run("подписка не найдена", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "Error",
				"error":  "no_active_subscription",
			})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second)
		_, err := client.GetUserSubscription(context.Background(), "nobody")
		require.ErrorIs(t, err, ledger.ErrNoActiveSubscription)
	})
}
