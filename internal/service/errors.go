package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/Freeeeeet/labportal/internal/scheduling"
)

var (
	// ErrScheduleConflict совпадает с *scheduling.ConflictError через errors.Is
	ErrScheduleConflict   = scheduling.ErrConflict
	ErrInvalidRepeatCount = scheduling.ErrInvalidRepeatCount
	ErrInvalidWeekday     = scheduling.ErrInvalidWeekday

	ErrUnauthorized          = errors.New("unauthorized")
	ErrLabNotFound           = errors.New("lab not found")
	ErrLabInUse              = errors.New("lab has schedules")
	ErrLabNameTaken          = errors.New("lab name already taken")
	ErrLabUnavailable        = errors.New("lab is under maintenance")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrAlreadyCancelled      = errors.New("reservation already cancelled")
	ErrInvalidTransition     = errors.New("invalid reservation status transition")
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrScheduleGroupNotFound = errors.New("schedule group not found")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrUserNotFound          = errors.New("user not found")
)

// ValidationError собирает ошибки по полям запроса
type ValidationError struct {
	FieldErrors map[string]string
	cause       error
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap отдаёт исходную ошибку, например ErrInvalidWeekday
func (v *ValidationError) Unwrap() error {
	return v.cause
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// addCause записывает ошибку поля и запоминает первую причину
func (v *ValidationError) addCause(field string, err error) {
	v.add(field, err.Error())
	if v.cause == nil {
		v.cause = err
	}
}

func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func fieldError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// ErrorKind возвращает стабильную метку ошибки для логов и ответов API
func ErrorKind(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &vErr):
		return "validation"
	case errors.Is(err, ErrScheduleConflict):
		return "schedule_conflict"
	case errors.Is(err, ErrInvalidRepeatCount):
		return "invalid_repeat_count"
	case errors.Is(err, ErrInvalidWeekday):
		return "invalid_weekday"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrLabNotFound):
		return "lab_not_found"
	case errors.Is(err, ErrLabInUse):
		return "lab_in_use"
	case errors.Is(err, ErrLabNameTaken):
		return "lab_name_taken"
	case errors.Is(err, ErrLabUnavailable):
		return "lab_unavailable"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, ErrScheduleGroupNotFound):
		return "schedule_group_not_found"
	case errors.Is(err, ErrNotificationNotFound):
		return "notification_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	default:
		return "internal"
	}
}
