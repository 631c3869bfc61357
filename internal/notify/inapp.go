package notify

import (
	"context"

	"github.com/Freeeeeet/labportal/internal/model"
)

// Recorder сохраняет уведомление в ленту пользователя
type Recorder interface {
	Record(ctx context.Context, userID int64, p model.NotificationPayload) (*model.Notification, error)
}

// InAppChannel пишет в таблицу уведомлений, которую показывает портал
type InAppChannel struct {
	recorder Recorder
}

func NewInAppChannel(r Recorder) *InAppChannel {
	return &InAppChannel{recorder: r}
}

func (c *InAppChannel) Name() string { return "in_app" }

func (c *InAppChannel) Send(ctx context.Context, to *model.User, p model.NotificationPayload) error {
	_, err := c.recorder.Record(ctx, to.ID, p)
	return err
}
