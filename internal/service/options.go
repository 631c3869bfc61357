package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/Freeeeeet/labportal/internal/service")

// Options - общие настройки сервисов
type Options struct {
	// Location задаёт календарь, в котором считается "сегодня"
	Location *time.Location
	Now      func() time.Time
	// BaseURL - адрес портала для ссылок в уведомлениях
	BaseURL string
	// StrictGroupUpdate включает проверку конфликтов для всех занятий группы
	StrictGroupUpdate bool
	// ReleaseScheduleOnCancel удаляет занятие при отмене одобренной заявки
	ReleaseScheduleOnCancel bool
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) now() time.Time {
	return o.Now().In(o.Location)
}

// today - текущая календарная дата в часовом поясе портала
func (o Options) today() time.Time {
	return scheduling.DateOf(o.now())
}

func (o Options) reservationLink(id int64) string {
	if o.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/reservations/%d", o.BaseURL, id)
}

// Actor - пользователь, от имени которого выполняется операция
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return fmt.Errorf("admin role required: %w", ErrUnauthorized)
	}
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}
