package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/sonicpay/subscrypt/internal/models"
)

// RoutingKey возвращает ключ маршрутизации для вида события.
func RoutingKey(kind models.EventKind) string {
	return "event." + string(kind)
}

// PublishEvent публикует событие леджера в обменник событий.
// Сообщения персистентны; порядок публикации повторяет порядок Seq.
func PublishEvent(ch *amqp.Channel, ev models.Event) error {
	const op = "rabbitmq.PublishEvent"
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		ExchangeName,
		RoutingKey(ev.Kind),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ReferenceID,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
