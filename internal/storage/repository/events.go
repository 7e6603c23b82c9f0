package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/models"
)

const maxEventLimit = 500

// AppendEvent дописывает событие в архив. Вставка идемпотентна по Seq:
// повторная доставка того же события не меняет архив.
func (s *Storage) AppendEvent(ctx context.Context, ev models.Event) error {
	const op = "storage.AppendEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO ledger_events (seq, kind, reference_id, plan_id, merchant, subscriber,
	              plan_name, amount, interval_seconds, supports_membership, max_subscribers,
	              membership_token_id, next_charge_time, reason, occurred_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	          ON CONFLICT (seq) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, query,
		ev.Seq, string(ev.Kind), ev.ReferenceID, ev.PlanID, ev.Merchant, ev.Subscriber,
		ev.PlanName, ev.Amount.String(), ev.IntervalSeconds, ev.SupportsMembership, ev.MaxSubscribers,
		ev.MembershipTokenID, nullTime(ev.NextChargeTime), ev.Reason, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListRecentEvents возвращает ограниченное окно недавних событий,
// отфильтрованных по подписчику, мерчанту и виду. Новые события первыми.
func (s *Storage) ListRecentEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	const op = "storage.ListRecentEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT seq, kind, reference_id, plan_id, merchant, subscriber, plan_name,
	                 amount, interval_seconds, supports_membership, max_subscribers,
	                 membership_token_id, next_charge_time, reason, occurred_at
	          FROM ledger_events
	          WHERE ($1 = '' OR subscriber = $1)
	            AND ($2 = '' OR merchant = $2)
	            AND ($3 = '' OR kind = $3)
	          ORDER BY seq DESC
	          LIMIT $4`
	rows, err := s.DB.QueryContext(ctx, query,
		filter.Subscriber, filter.Merchant, string(filter.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// ListEventsAfter возвращает страницу событий с Seq строго больше afterSeq
// в порядке возрастания. Используется для воспроизведения журнала с начала:
// потребитель листает страницы, пока выборка не опустеет.
func (s *Storage) ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error) {
	const op = "storage.ListEventsAfter"

	if limit <= 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT seq, kind, reference_id, plan_id, merchant, subscriber, plan_name,
	                 amount, interval_seconds, supports_membership, max_subscribers,
	                 membership_token_id, next_charge_time, reason, occurred_at
	          FROM ledger_events
	          WHERE seq > $1
	          ORDER BY seq ASC
	          LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// ListCharges возвращает историю платежей подписчика, производную
// от событий Charged. Новые платежи первыми.
func (s *Storage) ListCharges(ctx context.Context, subscriber string, limit int) ([]models.PaymentHistoryEntry, error) {
	const op = "storage.ListCharges"

	events, err := s.ListRecentEvents(ctx, models.EventFilter{
		Subscriber: subscriber,
		Kind:       models.EventCharged,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history := make([]models.PaymentHistoryEntry, 0, len(events))
	for _, ev := range events {
		history = append(history, models.PaymentHistoryEntry{
			Subscriber:  ev.Subscriber,
			PlanID:      ev.PlanID,
			Amount:      ev.Amount,
			ReferenceID: ev.ReferenceID,
			OccurredAt:  ev.OccurredAt,
		})
	}
	return history, nil
}

func scanEvent(rows *sql.Rows) (models.Event, error) {
	var (
		ev             models.Event
		kind           string
		amount         string
		nextChargeTime sql.NullTime
	)
	err := rows.Scan(&ev.Seq, &kind, &ev.ReferenceID, &ev.PlanID, &ev.Merchant, &ev.Subscriber,
		&ev.PlanName, &amount, &ev.IntervalSeconds, &ev.SupportsMembership, &ev.MaxSubscribers,
		&ev.MembershipTokenID, &nextChargeTime, &ev.Reason, &ev.OccurredAt)
	if err != nil {
		return models.Event{}, err
	}
	ev.Kind = models.EventKind(kind)
	ev.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return models.Event{}, err
	}
	if nextChargeTime.Valid {
		ev.NextChargeTime = nextChargeTime.Time
	}
	return ev, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
