package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ScheduleInput - поля занятия. Явная дата используется как есть, без
// сверки с днём недели; без даты берётся ближайший день после сегодня.
type ScheduleInput struct {
	LabID        int64      `json:"lab_id" validate:"required,gt=0"`
	Day          string     `json:"day" validate:"required_without=Date"`
	Date         *time.Time `json:"schedule_date"`
	StartTime    string     `json:"start_time" validate:"required"`
	EndTime      string     `json:"end_time" validate:"required"`
	CourseName   *string    `json:"course_name" validate:"omitempty,max=200"`
	LecturerID   *int64     `json:"lecturer_id" validate:"omitempty,gt=0"`
	LecturerName *string    `json:"lecturer_name" validate:"omitempty,max=200"`
	RepeatWeeks  int        `json:"repeat_weeks"`
}

// scheduleDraft - разобранный ScheduleInput
type scheduleDraft struct {
	in       ScheduleInput
	slot     slot
	explicit *time.Time
}

type ScheduleService struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
}

func NewScheduleService(store repository.Store, opts Options, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func parseSchedule(in ScheduleInput) (*scheduleDraft, error) {
	vErr := validateStruct(in)
	sl := parseSlot(vErr, in.Day, in.StartTime, in.EndTime)
	if err := vErr.orNil(); err != nil {
		return nil, err
	}

	d := &scheduleDraft{in: in, slot: sl}
	if in.Date != nil && !in.Date.IsZero() {
		date := scheduling.DateOf(*in.Date)
		d.explicit = &date
		if !sl.hasWeekday {
			d.slot.weekday, d.slot.hasWeekday = date.Weekday(), true
		}
	}
	return d, nil
}

func (d *scheduleDraft) firstDate(today time.Time) time.Time {
	return scheduling.ResolveFirstDate(d.slot.weekday, d.explicit, today)
}

// apply переносит поля черновика в занятие, кроме даты
func (d *scheduleDraft) apply(s *model.Schedule) {
	s.LabID = d.in.LabID
	s.Weekday = d.slot.weekday
	s.StartTime = d.slot.start
	s.EndTime = d.slot.end
	s.CourseName = d.in.CourseName
	s.LecturerID = d.in.LecturerID
	s.LecturerName = d.in.LecturerName
}

// checkRefs проверяет лабораторию и преподавателя внутри транзакции
func (s *ScheduleService) checkRefs(ctx context.Context, tx repository.Tx, d *scheduleDraft) error {
	lab, err := tx.Labs().GetByID(ctx, d.in.LabID)
	if err != nil {
		return fmt.Errorf("get lab: %w", err)
	}
	if lab == nil {
		return ErrLabNotFound
	}

	if d.in.LecturerID != nil {
		lecturer, err := tx.Users().GetByID(ctx, *d.in.LecturerID)
		if err != nil {
			return fmt.Errorf("get lecturer: %w", err)
		}
		if lecturer == nil {
			return fieldError("lecturer_id", "unknown user")
		}
		if d.in.LecturerName == nil || *d.in.LecturerName == "" {
			name := lecturer.Name
			d.in.LecturerName = &name
		}
	}
	return nil
}

// CreateOne создаёт одиночное занятие
func (s *ScheduleService) CreateOne(ctx context.Context, actor Actor, in ScheduleInput) (*model.Schedule, error) {
	in.RepeatWeeks = 1
	list, err := s.CreateRecurring(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// CreateRecurring создаёт серию из RepeatWeeks еженедельных занятий.
// Все даты проверяются до записи первой строки; при конфликте не
// создаётся ничего, а ошибка называет конфликтующую дату.
func (s *ScheduleService) CreateRecurring(ctx context.Context, actor Actor, in ScheduleInput) (list []*model.Schedule, err error) {
	ctx, span := startSpan(ctx, "ScheduleService.CreateRecurring",
		attribute.Int64("lab_id", in.LabID),
		attribute.Int("repeat_weeks", in.RepeatWeeks))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	d, err := parseSchedule(in)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		list, err = s.createSeries(ctx, tx, d)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			s.logger.Warn("Schedule creation refused", zap.Int64("lab_id", in.LabID), zap.Error(err))
		}
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("lab_id", in.LabID),
		zap.Int("count", len(list)),
		zap.String("first_date", list[0].Date.Format(time.DateOnly)),
	}
	if list[0].GroupID != nil {
		fields = append(fields, zap.String("group_id", list[0].GroupID.String()))
	}
	s.logger.Info("Schedules created", fields...)

	return list, nil
}

func (s *ScheduleService) createSeries(ctx context.Context, tx repository.Tx, d *scheduleDraft) ([]*model.Schedule, error) {
	repeat := d.in.RepeatWeeks
	if repeat == 0 {
		repeat = 1
	}
	series, err := scheduling.Expand(d.firstDate(s.opts.today()), repeat)
	if err != nil {
		return nil, err
	}

	if err := s.checkRefs(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := lockDates(ctx, tx, d.in.LabID, series.Dates...); err != nil {
		return nil, err
	}
	if err := scheduleChecker(tx).CheckSeries(ctx, d.in.LabID, series.Dates, d.slot.start, d.slot.end, 0); err != nil {
		return nil, err
	}

	list := make([]*model.Schedule, 0, len(series.Dates))
	for _, date := range series.Dates {
		sch := &model.Schedule{
			Date:        date,
			Type:        model.ScheduleTypeLecture,
			GroupID:     series.GroupID,
			RepeatWeeks: &repeat,
		}
		d.apply(sch)
		if err := tx.Schedules().Create(ctx, sch); err != nil {
			return nil, fmt.Errorf("create schedule: %w", err)
		}
		list = append(list, sch)
	}
	return list, nil
}

// shiftDays - на сколько дней переносится занятие при редактировании.
// Явная дата задаёт сдвиг напрямую, смена дня недели двигает занятие
// внутри его недели (понедельник - воскресенье).
func shiftDays(d *scheduleDraft, current *model.Schedule) int {
	if d.explicit != nil {
		return int(d.explicit.Sub(current.Date).Hours() / 24)
	}
	return isoWeekday(d.slot.weekday) - isoWeekday(current.Weekday)
}

func isoWeekday(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func (s *ScheduleService) loadSchedule(ctx context.Context, tx repository.Tx, id int64) (*model.Schedule, error) {
	sch, err := tx.Schedules().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if sch == nil {
		return nil, ErrScheduleNotFound
	}
	return sch, nil
}

// UpdateOne меняет одно занятие с проверкой конфликтов, исключая его самого
func (s *ScheduleService) UpdateOne(ctx context.Context, actor Actor, id int64, in ScheduleInput) (sch *model.Schedule, err error) {
	ctx, span := startSpan(ctx, "ScheduleService.UpdateOne", attribute.Int64("schedule_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	d, err := parseSchedule(in)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		sch, err = s.loadSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.checkRefs(ctx, tx, d); err != nil {
			return err
		}

		sch.Date = sch.Date.AddDate(0, 0, shiftDays(d, sch))
		d.apply(sch)

		if err := tx.LockSlot(ctx, sch.LabID, sch.Date); err != nil {
			return err
		}
		if err := scheduleChecker(tx).Check(ctx, sch.LabID, sch.Date, sch.StartTime, sch.EndTime, sch.ID); err != nil {
			return err
		}
		if err := tx.Schedules().Update(ctx, sch); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			s.logger.Warn("Schedule update refused", zap.Int64("schedule_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Schedule updated",
		zap.Int64("schedule_id", sch.ID),
		zap.String("date", sch.Date.Format(time.DateOnly)),
	)
	return sch, nil
}

// UpdateGroup меняет занятие и переносит день, время, курс, преподавателя и
// лабораторию на все занятия его группы. Конфликты проверяются только для
// выбранного занятия, остальные - лишь при StrictGroupUpdate.
func (s *ScheduleService) UpdateGroup(ctx context.Context, actor Actor, id int64, in ScheduleInput) (list []*model.Schedule, err error) {
	ctx, span := startSpan(ctx, "ScheduleService.UpdateGroup", attribute.Int64("schedule_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	d, err := parseSchedule(in)
	if err != nil {
		return nil, err
	}

	var groupID *uuid.UUID
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		target, err := s.loadSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.checkRefs(ctx, tx, d); err != nil {
			return err
		}

		members := []*model.Schedule{target}
		if target.GroupID != nil {
			groupID = target.GroupID
			members, err = tx.Schedules().List(ctx, model.ScheduleFilter{GroupID: target.GroupID})
			if err != nil {
				return fmt.Errorf("list group: %w", err)
			}
		}

		// Сдвиг в днях одинаков для всей серии, интервал в 7 дней сохраняется
		shift := shiftDays(d, target)

		dates := make([]time.Time, 0, len(members))
		skip := make(map[int64]struct{}, len(members))
		for _, m := range members {
			skip[m.ID] = struct{}{}
			m.Date = m.Date.AddDate(0, 0, shift)
			d.apply(m)
			dates = append(dates, m.Date)
		}

		if err := lockDates(ctx, tx, d.in.LabID, dates...); err != nil {
			return err
		}

		checker := scheduleCheckerExcluding(tx, skip)
		for _, m := range members {
			if m.ID != target.ID && !s.opts.StrictGroupUpdate {
				continue
			}
			if err := checker.Check(ctx, m.LabID, m.Date, m.StartTime, m.EndTime, 0); err != nil {
				return err
			}
		}

		for _, m := range members {
			if err := tx.Schedules().Update(ctx, m); err != nil {
				return fmt.Errorf("update schedule %d: %w", m.ID, err)
			}
		}
		list = members
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			s.logger.Warn("Group update refused", zap.Int64("schedule_id", id), zap.Error(err))
		}
		return nil, err
	}

	fields := []zap.Field{zap.Int64("schedule_id", id), zap.Int("count", len(list))}
	if groupID != nil {
		fields = append(fields, zap.String("group_id", groupID.String()))
	}
	s.logger.Info("Schedule group updated", fields...)
	return list, nil
}

// DeleteOne удаляет одно занятие, не трогая остальные в группе
func (s *ScheduleService) DeleteOne(ctx context.Context, actor Actor, id int64) (err error) {
	ctx, span := startSpan(ctx, "ScheduleService.DeleteOne", attribute.Int64("schedule_id", id))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := s.loadSchedule(ctx, tx, id); err != nil {
			return err
		}
		return tx.Schedules().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Schedule deleted", zap.Int64("schedule_id", id))
	return nil
}

// DeleteGroup удаляет все занятия группы и возвращает их число
func (s *ScheduleService) DeleteGroup(ctx context.Context, actor Actor, groupID uuid.UUID) (deleted int64, err error) {
	ctx, span := startSpan(ctx, "ScheduleService.DeleteGroup", attribute.String("group_id", groupID.String()))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return 0, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		deleted, err = tx.Schedules().DeleteByGroupID(ctx, groupID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrScheduleGroupNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Schedule group deleted",
		zap.String("group_id", groupID.String()),
		zap.Int64("count", deleted),
	)
	return deleted, nil
}

// GetByID возвращает занятие
func (s *ScheduleService) GetByID(ctx context.Context, id int64) (*model.Schedule, error) {
	sch, err := s.store.Schedules().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if sch == nil {
		return nil, ErrScheduleNotFound
	}
	return sch, nil
}

// ListGroup возвращает занятия группы по датам
func (s *ScheduleService) ListGroup(ctx context.Context, groupID uuid.UUID) ([]*model.Schedule, error) {
	list, err := s.store.Schedules().List(ctx, model.ScheduleFilter{GroupID: &groupID})
	if err != nil {
		return nil, fmt.Errorf("list group: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrScheduleGroupNotFound
	}
	return list, nil
}

// ListLabRange возвращает занятия лаборатории с from по to включительно
func (s *ScheduleService) ListLabRange(ctx context.Context, labID int64, from, to time.Time) ([]*model.Schedule, error) {
	lab, err := s.store.Labs().GetByID(ctx, labID)
	if err != nil {
		return nil, fmt.Errorf("get lab: %w", err)
	}
	if lab == nil {
		return nil, ErrLabNotFound
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fieldError("to", "must not be before from")
	}

	list, err := s.store.Schedules().List(ctx, model.ScheduleFilter{
		LabID: labID,
		From:  scheduling.DateOf(from),
		To:    scheduling.DateOf(to),
	})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return list, nil
}

// WeekOf возвращает понедельник недели, содержащей дату; нулевая дата - текущая неделя
func (s *ScheduleService) WeekOf(date time.Time) time.Time {
	if date.IsZero() {
		date = s.opts.today()
	}
	date = scheduling.DateOf(date)
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}
