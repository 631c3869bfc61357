package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/google/uuid"
)

// ErrDuplicate - нарушено ограничение уникальности
var ErrDuplicate = errors.New("duplicate record")

// Методы поиска по ID возвращают (nil, nil), если строки нет.

type LabStore interface {
	Create(ctx context.Context, lab *model.Lab) error
	GetByID(ctx context.Context, id int64) (*model.Lab, error)
	List(ctx context.Context) ([]*model.Lab, error)
	Update(ctx context.Context, lab *model.Lab) error
	Delete(ctx context.Context, id int64) error
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.User, error)
	ListIDsByRole(ctx context.Context, role model.Role) ([]int64, error)
}

type ReservationStore interface {
	Create(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	ListByRequester(ctx context.Context, requesterID int64) ([]*model.Reservation, error)
	ListByStatus(ctx context.Context, status model.ReservationStatus) ([]*model.Reservation, error)
	// ActiveOn возвращает заявки pending/approved лаборатории на дату
	ActiveOn(ctx context.Context, labID int64, date time.Time) ([]*model.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, status model.ReservationStatus) error
	Delete(ctx context.Context, id int64) error
}

type ScheduleStore interface {
	Create(ctx context.Context, s *model.Schedule) error
	GetByID(ctx context.Context, id int64) (*model.Schedule, error)
	List(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error)
	// On возвращает занятия лаборатории на дату, отсортированные по началу
	On(ctx context.Context, labID int64, date time.Time) ([]*model.Schedule, error)
	Update(ctx context.Context, s *model.Schedule) error
	Delete(ctx context.Context, id int64) error
	DeleteByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error)
	DeleteByReservationID(ctx context.Context, reservationID int64) (int64, error)
	CountByLab(ctx context.Context, labID int64) (int, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
}

type OutboxStore interface {
	Enqueue(ctx context.Context, msg *model.OutboxMessage) error
	// ClaimPending блокирует до limit неопубликованных сообщений до конца транзакции
	ClaimPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Tx - набор репозиториев, работающих в одной транзакции
type Tx interface {
	Labs() LabStore
	Users() UserStore
	Reservations() ReservationStore
	Schedules() ScheduleStore
	Notifications() NotificationStore
	Outbox() OutboxStore
	// LockSlot берёт блокировку (лаборатория, дата) до конца транзакции
	LockSlot(ctx context.Context, labID int64, date time.Time) error
}

// Store - вне транзакции методы Tx работают в режиме autocommit
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
