// Package notify доставляет события заявок из outbox адресатам. Издатель AMQP
// работает в реле outbox, потребитель - в воркере уведомлений, а диспетчер
// рассылает по каналам: портал, почта, Telegram.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
)

// Envelope - сообщение outbox в том виде, в каком оно идёт через брокер
type Envelope struct {
	ID         int64                     `json:"id"`
	Kind       model.NotificationKind    `json:"kind"`
	Recipients []int64                   `json:"recipients"`
	Payload    model.NotificationPayload `json:"payload"`
	CreatedAt  time.Time                 `json:"created_at"`
}

func EnvelopeFrom(msg *model.OutboxMessage) Envelope {
	return Envelope{
		ID:         msg.ID,
		Kind:       msg.Kind,
		Recipients: msg.Recipients,
		Payload:    msg.Payload,
		CreatedAt:  msg.CreatedAt,
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope разбирает тело доставки. Неизвестный вид и пустой список
// получателей - ошибка, такие сообщения уходят в dead-letter очередь.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch e.Kind {
	case model.NotificationReservationSubmitted, model.NotificationReservationStatusChanged:
	default:
		return Envelope{}, fmt.Errorf("decode envelope: unknown kind %q", e.Kind)
	}
	if len(e.Recipients) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope %d: no recipients", e.ID)
	}
	return e, nil
}
