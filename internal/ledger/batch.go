package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/models"
)

// ProcessBatchPayments привилегированный путь релеера для безгазового
// пакетного списания. Пакет не атомарен между записями: каждая пара
// (подписчик, сумма) обрабатывается как независимое списание, отказ одной
// записи никогда не блокирует расчёт по остальным. Переданные суммы
// носят справочный характер, авторитетной остаётся цена плана.
func (l *Ledger) ProcessBatchPayments(ctx context.Context, relayer string, subscribers []string, token string, amounts []decimal.Decimal) ([]models.BatchEntryResult, error) {
	const op = "ledger.ProcessBatchPayments"

	if !l.cfg.FeeMEnabled || relayer == "" || relayer != l.cfg.RelayerAddress {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if len(amounts) > 0 && len(amounts) != len(subscribers) {
		return nil, fmt.Errorf("%s: subscribers and amounts length mismatch: %w", op, ErrValidation)
	}
	if len(subscribers) == 0 {
		return nil, fmt.Errorf("%s: empty batch: %w", op, ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	results := make([]models.BatchEntryResult, 0, len(subscribers))
	for _, subscriber := range subscribers {
		res, err := l.processPaymentLocked(ctx, subscriber, token)
		if err != nil {
			results = append(results, models.BatchEntryResult{
				Subscriber: subscriber,
				Amount:     decimal.Zero,
				Error:      Kind(err),
			})
			continue
		}
		results = append(results, models.BatchEntryResult{
			Subscriber:  subscriber,
			Success:     true,
			Amount:      res.Amount,
			ReferenceID: res.ReferenceID,
		})
	}
	l.log.Info("batch settlement finished",
		slog.String("relayer", relayer), slog.Int("entries", len(results)))
	return results, nil
}
