// Package httpapi - JSON HTTP API портала поверх сервисов
package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/labportal/internal/auth"
	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services - сервисы, которые вызывает API
type Services struct {
	Labs          *service.LabService
	Users         *service.UserService
	Reservations  *service.ReservationService
	Schedules     *service.ScheduleService
	Notifications *service.NotificationService
}

type Config struct {
	Issuer *auth.Issuer
	Logger *zap.Logger
	// Now - текущее время для отметки на картинке недели
	Now func() time.Time
	// MaxUploadBytes - предельный размер файла импорта
	MaxUploadBytes int64
}

type api struct {
	svc    Services
	cfg    Config
	logger *zap.Logger
}

func NewRouter(svc Services, cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 8 << 20
	}
	a := &api{svc: svc, cfg: cfg, logger: cfg.Logger}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), requestLogger(cfg.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1", auth.Middleware(cfg.Issuer))
	admin := auth.RequireRole(model.RoleAdmin)

	v1.GET("/labs", a.listLabs)
	v1.GET("/labs/:id", a.getLab)
	v1.POST("/labs", admin, a.createLab)
	v1.PUT("/labs/:id", admin, a.updateLab)
	v1.DELETE("/labs/:id", admin, a.deleteLab)
	v1.GET("/labs/:id/schedules", a.listLabSchedules)
	v1.GET("/labs/:id/week.png", a.labWeekImage)

	v1.POST("/users", admin, a.createUser)

	v1.POST("/reservations", a.submitReservation)
	v1.GET("/reservations", admin, a.listReservationsByStatus)
	v1.GET("/reservations/mine", a.listMyReservations)
	v1.GET("/reservations/:id", a.getReservation)
	v1.POST("/reservations/:id/approve", admin, a.approveReservation)
	v1.POST("/reservations/:id/reject", admin, a.rejectReservation)
	v1.POST("/reservations/:id/cancel", a.cancelReservation)
	v1.DELETE("/reservations/:id", admin, a.deleteReservation)

	v1.POST("/schedules", admin, a.createSchedule)
	v1.POST("/schedules/recurring", admin, a.createRecurringSchedule)
	v1.POST("/schedules/import", admin, a.importSchedules)
	v1.GET("/schedules/:id", a.getSchedule)
	v1.PUT("/schedules/:id", admin, a.updateSchedule)
	v1.PUT("/schedules/:id/group", admin, a.updateScheduleGroup)
	v1.DELETE("/schedules/:id", admin, a.deleteSchedule)
	v1.GET("/schedule-groups/:group_id", a.listScheduleGroup)
	v1.DELETE("/schedule-groups/:group_id", admin, a.deleteScheduleGroup)

	v1.GET("/notifications", a.listNotifications)
	v1.POST("/notifications/:id/read", a.markNotificationRead)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if claims, ok := auth.ClaimsFrom(c); ok {
			fields = append(fields, zap.String("user", claims.Subject))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}

// actor собирает вызывающего из проверенного токена
func actor(c *gin.Context) service.Actor {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return service.Actor{}
	}
	id, _ := claims.UserID()
	return service.Actor{UserID: id, Role: claims.Role}
}
