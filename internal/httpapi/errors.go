package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Error       string            `json:"error"`
	Kind        string            `json:"kind"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	Conflict    *conflictBody     `json:"conflict,omitempty"`
}

type conflictBody struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	WithID    int64  `json:"with_id"`
	WithStart string `json:"with_start_time"`
	WithEnd   string `json:"with_end_time"`
	WithLabel string `json:"with_label,omitempty"`
}

func statusFor(kind string) int {
	switch kind {
	case "validation", "invalid_repeat_count", "invalid_weekday":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusForbidden
	case "lab_not_found", "reservation_not_found", "schedule_not_found",
		"schedule_group_not_found", "notification_not_found", "user_not_found":
		return http.StatusNotFound
	case "schedule_conflict", "lab_in_use", "lab_name_taken", "already_cancelled", "invalid_transition":
		return http.StatusConflict
	case "lab_unavailable":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(c *gin.Context, err error) {
	kind := service.ErrorKind(err)
	status := statusFor(kind)
	body := errorBody{Error: err.Error(), Kind: kind}

	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		body.FieldErrors = vErr.FieldErrors
	}
	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		body.Conflict = &conflictBody{
			Date:      conflict.Date.Format(time.DateOnly),
			StartTime: conflict.Start.String(),
			EndTime:   conflict.End.String(),
			WithID:    conflict.With.ID,
			WithStart: conflict.With.Start.String(),
			WithEnd:   conflict.With.End.String(),
			WithLabel: conflict.With.Label,
		}
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("handler error", zap.String("path", c.FullPath()), zap.Error(err))
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Error:       field + ": " + message,
		Kind:        "validation",
		FieldErrors: map[string]string{field: message},
	})
}
