package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitReservationInput - заявка на слот лаборатории. Если указана дата,
// она используется как есть; иначе берётся ближайший день недели после сегодня.
type SubmitReservationInput struct {
	LabID     int64      `json:"lab_id" validate:"required,gt=0"`
	Day       string     `json:"day" validate:"required_without=Date"`
	Date      *time.Time `json:"date"`
	StartTime string     `json:"start_time" validate:"required"`
	EndTime   string     `json:"end_time" validate:"required"`
	Purpose   string     `json:"purpose" validate:"required,max=500"`
}

type ReservationService struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
}

func NewReservationService(store repository.Store, opts Options, logger *zap.Logger) *ReservationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func (s *ReservationService) parseSubmit(in SubmitReservationInput) (*model.Reservation, error) {
	vErr := validateStruct(in)
	sl := parseSlot(vErr, in.Day, in.StartTime, in.EndTime)
	if err := vErr.orNil(); err != nil {
		return nil, err
	}

	var date time.Time
	switch {
	case in.Date != nil && !in.Date.IsZero():
		date = scheduling.ResolveFirstDate(sl.weekday, in.Date, s.opts.today())
		if !sl.hasWeekday {
			sl.weekday = date.Weekday()
		}
	case sl.hasWeekday:
		date = scheduling.NextDate(sl.weekday, s.opts.today(), 0)
	}

	if sl.weekday == time.Sunday {
		return nil, fieldError("day", "must be Monday through Saturday")
	}

	return &model.Reservation{
		LabID:     in.LabID,
		Weekday:   sl.weekday,
		Date:      date,
		StartTime: sl.start,
		EndTime:   sl.end,
		Purpose:   in.Purpose,
		Status:    model.ReservationStatusPending,
	}, nil
}

// Submit создаёт заявку в статусе pending и уведомляет администраторов
func (s *ReservationService) Submit(ctx context.Context, actor Actor, in SubmitReservationInput) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Submit", attribute.Int64("lab_id", in.LabID))
	defer func() { endSpan(span, err) }()

	res, err = s.parseSubmit(in)
	if err != nil {
		return nil, err
	}
	res.RequesterID = actor.UserID

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		lab, err := tx.Labs().GetByID(ctx, res.LabID)
		if err != nil {
			return fmt.Errorf("get lab: %w", err)
		}
		if lab == nil {
			return ErrLabNotFound
		}
		if !lab.IsAvailable() {
			return ErrLabUnavailable
		}

		requester, err := tx.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("get requester: %w", err)
		}
		if requester == nil {
			return fmt.Errorf("requester %d: %w", actor.UserID, ErrUnauthorized)
		}

		if err := tx.LockSlot(ctx, res.LabID, res.Date); err != nil {
			return err
		}
		if err := reservationChecker(tx).Check(ctx, res.LabID, res.Date, res.StartTime, res.EndTime, 0); err != nil {
			return err
		}

		if err := tx.Reservations().Create(ctx, res); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		admins, err := tx.Users().ListIDsByRole(ctx, model.RoleAdmin)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}
		if len(admins) > 0 {
			if err := tx.Outbox().Enqueue(ctx, submittedEvent(s.opts, res, lab, requester, admins)); err != nil {
				return fmt.Errorf("enqueue notification: %w", err)
			}
		}

		res.Lab, res.Requester = lab, requester
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			s.logger.Warn("Reservation refused",
				zap.Int64("lab_id", in.LabID),
				zap.Int64("requester_id", actor.UserID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("Reservation submitted",
		zap.Int64("reservation_id", res.ID),
		zap.Int64("lab_id", res.LabID),
		zap.Int64("requester_id", res.RequesterID),
		zap.String("date", res.Date.Format(time.DateOnly)),
	)

	return res, nil
}

// Approve одобряет заявку и создаёт по ней занятие в одной транзакции.
// При конфликте с занятиями заявка остаётся pending.
func (s *ReservationService) Approve(ctx context.Context, actor Actor, id int64) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Approve", attribute.Int64("reservation_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var created *model.Schedule
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var lab *model.Lab
		var err error
		res, lab, err = s.loadPending(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := tx.LockSlot(ctx, res.LabID, res.Date); err != nil {
			return err
		}
		if err := scheduleChecker(tx).Check(ctx, res.LabID, res.Date, res.StartTime, res.EndTime, 0); err != nil {
			return err
		}

		if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.ReservationStatusApproved); err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		res.Status = model.ReservationStatusApproved

		requester, err := tx.Users().GetByID(ctx, res.RequesterID)
		if err != nil {
			return fmt.Errorf("get requester: %w", err)
		}
		if requester == nil {
			requester = &model.User{ID: res.RequesterID}
		}

		purpose := res.Purpose
		reservationID := res.ID
		requesterID := res.RequesterID
		created = &model.Schedule{
			LabID:         res.LabID,
			Weekday:       res.Weekday,
			Date:          res.Date,
			StartTime:     res.StartTime,
			EndTime:       res.EndTime,
			CourseName:    &purpose,
			LecturerID:    &requesterID,
			Type:          model.ScheduleTypeReservation,
			ReservationID: &reservationID,
		}
		if requester.Name != "" {
			name := requester.Name
			created.LecturerName = &name
		}
		if err := tx.Schedules().Create(ctx, created); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}

		if err := tx.Outbox().Enqueue(ctx, statusChangedEvent(s.opts, res, lab, requester)); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}

		res.Lab, res.Requester = lab, requester
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			s.logger.Warn("Reservation approval refused",
				zap.Int64("reservation_id", id),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("Reservation approved",
		zap.Int64("reservation_id", res.ID),
		zap.Int64("schedule_id", created.ID),
		zap.Int64("admin_id", actor.UserID),
	)

	return res, nil
}

// Reject отклоняет заявку в статусе pending
func (s *ReservationService) Reject(ctx context.Context, actor Actor, id int64) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Reject", attribute.Int64("reservation_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var lab *model.Lab
		var err error
		res, lab, err = s.loadPending(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.ReservationStatusRejected); err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		res.Status = model.ReservationStatusRejected

		requester, err := tx.Users().GetByID(ctx, res.RequesterID)
		if err != nil {
			return fmt.Errorf("get requester: %w", err)
		}
		if requester == nil {
			requester = &model.User{ID: res.RequesterID}
		}

		if err := tx.Outbox().Enqueue(ctx, statusChangedEvent(s.opts, res, lab, requester)); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}

		res.Lab, res.Requester = lab, requester
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reservation rejected",
		zap.Int64("reservation_id", res.ID),
		zap.Int64("admin_id", actor.UserID),
	)

	return res, nil
}

func (s *ReservationService) loadPending(ctx context.Context, tx repository.Tx, id int64) (*model.Reservation, *model.Lab, error) {
	res, err := tx.Reservations().GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, nil, ErrReservationNotFound
	}
	if res.Status != model.ReservationStatusPending {
		return nil, nil, fmt.Errorf("reservation is %s: %w", res.Status, ErrInvalidTransition)
	}

	lab, err := tx.Labs().GetByID(ctx, res.LabID)
	if err != nil {
		return nil, nil, fmt.Errorf("get lab: %w", err)
	}
	if lab == nil {
		return nil, nil, ErrLabNotFound
	}
	return res, lab, nil
}

// Cancel отменяет заявку владельца из pending или approved
func (s *ReservationService) Cancel(ctx context.Context, actor Actor, id int64) (res *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Cancel", attribute.Int64("reservation_id", id))
	defer func() { endSpan(span, err) }()

	var released int64
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.Reservations().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		if res == nil {
			return ErrReservationNotFound
		}
		if res.RequesterID != actor.UserID && !actor.IsAdmin() {
			return ErrUnauthorized
		}

		switch res.Status {
		case model.ReservationStatusCancelled:
			return ErrAlreadyCancelled
		case model.ReservationStatusRejected:
			return fmt.Errorf("reservation is %s: %w", res.Status, ErrInvalidTransition)
		}
		wasApproved := res.Status == model.ReservationStatusApproved

		if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.ReservationStatusCancelled); err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		res.Status = model.ReservationStatusCancelled

		if wasApproved && s.opts.ReleaseScheduleOnCancel {
			released, err = tx.Schedules().DeleteByReservationID(ctx, res.ID)
			if err != nil {
				return fmt.Errorf("release schedule: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reservation cancelled",
		zap.Int64("reservation_id", res.ID),
		zap.Int64("user_id", actor.UserID),
		zap.Int64("released_schedules", released),
	)

	return res, nil
}

// Get возвращает заявку владельцу или администратору
func (s *ReservationService) Get(ctx context.Context, actor Actor, id int64) (*model.Reservation, error) {
	res, err := s.store.Reservations().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, ErrReservationNotFound
	}
	if res.RequesterID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	if err := s.attachDetails(ctx, []*model.Reservation{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// ListMine возвращает заявки текущего пользователя, новые первыми
func (s *ReservationService) ListMine(ctx context.Context, actor Actor) ([]*model.Reservation, error) {
	list, err := s.store.Reservations().ListByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if err := s.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListByStatus возвращает заявки в статусе для администратора
func (s *ReservationService) ListByStatus(ctx context.Context, actor Actor, status model.ReservationStatus) ([]*model.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch status {
	case model.ReservationStatusPending, model.ReservationStatusApproved,
		model.ReservationStatusRejected, model.ReservationStatusCancelled:
	default:
		return nil, fieldError("status", "must be one of: pending approved rejected cancelled")
	}

	list, err := s.store.Reservations().ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if err := s.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Delete удаляет заявку вместе с созданным по ней занятием
func (s *ReservationService) Delete(ctx context.Context, actor Actor, id int64) (err error) {
	ctx, span := startSpan(ctx, "ReservationService.Delete", attribute.Int64("reservation_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		res, err := tx.Reservations().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		if res == nil {
			return ErrReservationNotFound
		}
		return tx.Reservations().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Reservation deleted",
		zap.Int64("reservation_id", id),
		zap.Int64("admin_id", actor.UserID),
	)
	return nil
}

// attachDetails заполняет Lab и Requester для отображения
func (s *ReservationService) attachDetails(ctx context.Context, list []*model.Reservation) error {
	if len(list) == 0 {
		return nil
	}

	labs := map[int64]*model.Lab{}
	var userIDs []int64
	seen := map[int64]bool{}
	for _, r := range list {
		if _, ok := labs[r.LabID]; !ok {
			lab, err := s.store.Labs().GetByID(ctx, r.LabID)
			if err != nil {
				return fmt.Errorf("get lab: %w", err)
			}
			labs[r.LabID] = lab
		}
		if !seen[r.RequesterID] {
			seen[r.RequesterID] = true
			userIDs = append(userIDs, r.RequesterID)
		}
	}

	users, err := s.store.Users().GetByIDs(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("get requesters: %w", err)
	}
	byID := make(map[int64]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, r := range list {
		r.Lab = labs[r.LabID]
		r.Requester = byID[r.RequesterID]
	}
	return nil
}
