// Package ledgerclient реализует HTTP-клиент расчетного сервиса для внешних
// агентов (планировщика). Клиент классифицирует каждый сбой: транспортные
// ошибки и таймауты помечаются временными и не приравниваются к
// подтверждённому отказу леджера.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Client HTTP-клиент фасада леджера.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New создает клиент с заданным адресом сервиса и таймаутом запросов.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ProcessPayment проводит списание через леджер.
func (c *Client) ProcessPayment(ctx context.Context, subscriber, token string) (models.MutationResult, error) {
	const op = "ledgerclient.ProcessPayment"

	body := models.DummyCharge{Subscriber: subscriber, Token: token}
	data, err := c.call(ctx, http.MethodPost, "/api/v1/payments/process", body)
	if err != nil {
		return models.MutationResult{Error: ledger.Kind(err)}, fmt.Errorf("%s: %w", op, err)
	}

	var result models.MutationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.MutationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetUserSubscription читает авторитетное состояние подписки пользователя.
func (c *Client) GetUserSubscription(ctx context.Context, subscriber string) (*models.Subscription, error) {
	const op = "ledgerclient.GetUserSubscription"

	data, err := c.call(ctx, http.MethodGet, "/api/v1/subscriptions/"+url.PathEscape(subscriber), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sub models.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// call выполняет запрос и разворачивает конверт ответа.
// Транспортный сбой оборачивается в ledger.ErrTransient; ошибка из конверта
// восстанавливается в классифицированную ошибку леджера.
func (c *Client) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: unexpected response: %v", ledger.ErrTransient, err)
	}
	if env.Status != "OK" {
		return nil, ledger.FromKind(env.Error)
	}
	return env.Data, nil
}
