package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"go.uber.org/zap"
)

type NotificationService struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
}

func NewNotificationService(store repository.Store, opts Options, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, opts: opts.withDefaults(), logger: logger}
}

// Record сохраняет уведомление в ленте пользователя
func (s *NotificationService) Record(ctx context.Context, userID int64, p model.NotificationPayload) (*model.Notification, error) {
	n := &model.Notification{
		UserID:  userID,
		Kind:    p.Kind,
		Title:   p.Title,
		Message: p.Message,
	}
	if p.URL != "" {
		url := p.URL
		n.URL = &url
	}
	if p.ReservationID != 0 {
		id := p.ReservationID
		n.ReservationID = &id
	}

	if err := s.store.Notifications().Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List возвращает уведомления пользователя
func (s *NotificationService) List(ctx context.Context, actor Actor, unreadOnly bool) ([]*model.Notification, error) {
	list, err := s.store.Notifications().ListByUser(ctx, actor.UserID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkRead отмечает своё уведомление прочитанным
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id int64) (*model.Notification, error) {
	n, err := s.store.Notifications().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	if n.UserID != actor.UserID {
		return nil, ErrUnauthorized
	}

	if n.ReadAt == nil {
		at := s.opts.Now()
		if err := s.store.Notifications().MarkRead(ctx, id, at); err != nil {
			return nil, err
		}
		n.ReadAt = &at
		s.logger.Info("Notification read", zap.Int64("notification_id", id), zap.Int64("user_id", actor.UserID))
	}
	return n, nil
}
