package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type NotificationRepository struct {
	*base.Repository
}

func NewNotificationRepository(db base.DBTX) *NotificationRepository {
	return &NotificationRepository{Repository: base.NewRepository(db)}
}

const notificationColumns = `id, user_id, kind, title, message, url, reservation_id, read_at, created_at`

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Kind,
		&n.Title,
		&n.Message,
		&n.URL,
		&n.ReservationID,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create сохраняет уведомление в ленте пользователя
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (user_id, kind, title, message, url, reservation_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.DB().QueryRow(ctx, query, n.UserID, n.Kind, n.Title, n.Message, n.URL, n.ReservationID).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	return nil
}

// GetByID получает уведомление по ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	n, err := scanNotification(r.DB().QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification by id: %w", err)
	}
	return n, nil
}

// ListByUser получает уведомления пользователя, новые первыми
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.DB().Query(ctx, query, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var list []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return list, nil
}

// MarkRead отмечает уведомление прочитанным; повторная отметка не меняет время
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2`

	affected, err := r.ExecAffected(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("notification not found")
	}

	return nil
}
