package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ScheduleRepository struct {
	*base.Repository
}

func NewScheduleRepository(db base.DBTX) *ScheduleRepository {
	return &ScheduleRepository{Repository: base.NewRepository(db)}
}

const scheduleColumns = `id, lab_id, weekday, schedule_date, start_time, end_time, course_name, lecturer_id,
	lecturer_name, type, reservation_id, group_id, repeat_weeks, created_at, updated_at`

func scanSchedule(row pgx.Row) (*model.Schedule, error) {
	var (
		s          model.Schedule
		start, end pgtype.Time
	)
	err := row.Scan(
		&s.ID,
		&s.LabID,
		&s.Weekday,
		&s.Date,
		&start,
		&end,
		&s.CourseName,
		&s.LecturerID,
		&s.LecturerName,
		&s.Type,
		&s.ReservationID,
		&s.GroupID,
		&s.RepeatWeeks,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.StartTime, err = base.ClockFromPg(start); err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	if s.EndTime, err = base.ClockFromPg(end); err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}
	return &s, nil
}

func (r *ScheduleRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Schedule, error) {
	rows, err := r.DB().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	return schedules, nil
}

// Create создаёт занятие
func (r *ScheduleRepository) Create(ctx context.Context, s *model.Schedule) error {
	query := `
		INSERT INTO schedules (lab_id, weekday, schedule_date, start_time, end_time, course_name, lecturer_id,
			lecturer_name, type, reservation_id, group_id, repeat_weeks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		s.LabID,
		s.Weekday,
		s.Date,
		base.ClockToPg(s.StartTime),
		base.ClockToPg(s.EndTime),
		s.CourseName,
		s.LecturerID,
		s.LecturerName,
		s.Type,
		s.ReservationID,
		s.GroupID,
		s.RepeatWeeks,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create schedule: %w", ErrDuplicate)
		}
		return fmt.Errorf("create schedule: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*model.Schedule, error) {
	s, err := scanSchedule(r.DB().QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get schedule by id: %w", err)
	}
	return s, nil
}

// List получает занятия по фильтру, упорядоченные по дате и началу
func (r *ScheduleRepository) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.LabID != 0 {
		add("lab_id = $%d", filter.LabID)
	}
	if !filter.From.IsZero() {
		add("schedule_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("schedule_date <= $%d", filter.To)
	}
	if filter.GroupID != nil {
		add("group_id = $%d", *filter.GroupID)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY schedule_date, start_time, id`

	return r.list(ctx, "list schedules", query, args...)
}

// On получает занятия лаборатории на дату
func (r *ScheduleRepository) On(ctx context.Context, labID int64, date time.Time) ([]*model.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE lab_id = $1 AND schedule_date = $2
		ORDER BY start_time
	`
	return r.list(ctx, "list schedules on date", query, labID, date)
}

// Update обновляет все изменяемые поля занятия
func (r *ScheduleRepository) Update(ctx context.Context, s *model.Schedule) error {
	query := `
		UPDATE schedules
		SET lab_id = $1, weekday = $2, schedule_date = $3, start_time = $4, end_time = $5,
			course_name = $6, lecturer_id = $7, lecturer_name = $8, updated_at = now()
		WHERE id = $9
		RETURNING updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		s.LabID,
		s.Weekday,
		s.Date,
		base.ClockToPg(s.StartTime),
		base.ClockToPg(s.EndTime),
		s.CourseName,
		s.LecturerID,
		s.LecturerName,
		s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("schedule not found")
		}
		return fmt.Errorf("update schedule: %w", err)
	}

	return nil
}

// Delete удаляет одно занятие, не затрагивая остальные в группе
func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("schedule not found")
	}

	return nil
}

// DeleteByGroupID удаляет все занятия группы
func (r *ScheduleRepository) DeleteByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM schedules WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules by group: %w", err)
	}
	return affected, nil
}

// DeleteByReservationID удаляет занятие, созданное по заявке
func (r *ScheduleRepository) DeleteByReservationID(ctx context.Context, reservationID int64) (int64, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM schedules WHERE reservation_id = $1`, reservationID)
	if err != nil {
		return 0, fmt.Errorf("delete schedule by reservation: %w", err)
	}
	return affected, nil
}

// CountByLab считает занятия лаборатории
func (r *ScheduleRepository) CountByLab(ctx context.Context, labID int64) (int, error) {
	var count int
	err := r.DB().QueryRow(ctx, `SELECT COUNT(*) FROM schedules WHERE lab_id = $1`, labID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count schedules by lab: %w", err)
	}
	return count, nil
}
