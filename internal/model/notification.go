package model

import "time"

type NotificationKind string

const (
	NotificationReservationSubmitted     NotificationKind = "reservation_submitted"
	NotificationReservationStatusChanged NotificationKind = "reservation_status_changed"
)

// NotificationPayload - единая схема полезной нагрузки уведомления
type NotificationPayload struct {
	Kind          NotificationKind  `json:"kind"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	URL           string            `json:"url,omitempty"`
	ReservationID int64             `json:"reservation_id"`
	LabName       string            `json:"lab_name"`
	RequesterName string            `json:"requester_name"`
	Purpose       string            `json:"purpose"`
	Status        ReservationStatus `json:"status,omitempty"`
}

// Notification - запись в ленте уведомлений пользователя
type Notification struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	Kind          NotificationKind `json:"kind"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	URL           *string          `json:"url"`
	ReservationID *int64           `json:"reservation_id"`
	ReadAt        *time.Time       `json:"read_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// OutboxMessage - событие, записанное в той же транзакции, что и переход состояния
type OutboxMessage struct {
	ID          int64               `json:"id"`
	Kind        NotificationKind    `json:"kind"`
	Recipients  []int64             `json:"recipients"`
	Payload     NotificationPayload `json:"payload"`
	Attempts    int                 `json:"attempts"`
	LastError   *string             `json:"last_error"`
	PublishedAt *time.Time          `json:"published_at"`
	CreatedAt   time.Time           `json:"created_at"`
}
