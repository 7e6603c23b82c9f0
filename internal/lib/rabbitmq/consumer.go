package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// ConsumeEvents читает события леджера из очереди и передаёт их обработчику.
// Подтверждение ручное: ошибка обработчика возвращает сообщение в очередь,
// поэтому обработчик обязан быть идемпотентным.
func ConsumeEvents(ctx context.Context, ch *amqp.Channel, queueName string, log *slog.Logger, handler func(models.Event) error) error {
	const op = "rabbitmq.ConsumeEvents"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				var ev models.Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					log.Error("failed to decode ledger event", sl.Err(err))
					if nackErr := d.Nack(false, false); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					continue
				}
				if err := handler(ev); err != nil {
					log.Error("failed to handle ledger event",
						slog.Int64("seq", ev.Seq), sl.Err(err))
					if nackErr := d.Nack(false, true); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					continue
				}
				if ackErr := d.Ack(false); ackErr != nil {
					log.Error("failed to ack message", sl.Err(ackErr))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
