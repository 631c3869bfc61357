package notify

import (
	"fmt"

	"github.com/Freeeeeet/labportal/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// routedKinds - виды событий, которые очередь уведомлений получает из обменника
var routedKinds = []model.NotificationKind{
	model.NotificationReservationSubmitted,
	model.NotificationReservationStatusChanged,
}

// Topology описывает обменник уведомлений, рабочую очередь и dead-letter обменник
type Topology struct {
	Exchange string
	Queue    string
	DLX      string
}

// DeadLetterQueue - очередь, куда DLX складывает отвергнутые сообщения
func (t Topology) DeadLetterQueue() string {
	return t.Queue + ".dlq"
}

// declarer - часть *amqp.Channel, нужная для объявления топологии
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare идемпотентно объявляет всю топологию. Вызывают и издатель, и
// потребитель: сообщение маршрутизируется в очередь, даже если потребитель
// ещё ни разу не запускался.
func (t Topology) Declare(ch declarer) error {
	if err := ch.ExchangeDeclare(t.DLX, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx: %w", err)
	}
	dlq := t.DeadLetterQueue()
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}
	if err := ch.QueueBind(dlq, "#", t.DLX, false, nil); err != nil {
		return fmt.Errorf("bind dlq: %w", err)
	}

	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": t.DLX,
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, kind := range routedKinds {
		if err := ch.QueueBind(q.Name, string(kind), t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", kind, err)
		}
	}
	return nil
}
