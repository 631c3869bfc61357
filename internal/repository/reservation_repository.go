package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ReservationRepository struct {
	*base.Repository
}

func NewReservationRepository(db base.DBTX) *ReservationRepository {
	return &ReservationRepository{Repository: base.NewRepository(db)}
}

const reservationColumns = `id, requester_id, lab_id, weekday, reserve_date, start_time, end_time, purpose, status, created_at, updated_at`

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var (
		r          model.Reservation
		start, end pgtype.Time
	)
	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&r.LabID,
		&r.Weekday,
		&r.Date,
		&start,
		&end,
		&r.Purpose,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.StartTime, err = base.ClockFromPg(start); err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	if r.EndTime, err = base.ClockFromPg(end); err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}
	return &r, nil
}

func (r *ReservationRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Reservation, error) {
	rows, err := r.DB().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var reservations []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return reservations, nil
}

// Create создаёт заявку
func (r *ReservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	query := `
		INSERT INTO reservations (requester_id, lab_id, weekday, reserve_date, start_time, end_time, purpose, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		res.RequesterID,
		res.LabID,
		res.Weekday,
		res.Date,
		base.ClockToPg(res.StartTime),
		base.ClockToPg(res.EndTime),
		res.Purpose,
		res.Status,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	res, err := scanReservation(r.DB().QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}
	return res, nil
}

// ListByRequester получает все заявки пользователя
func (r *ReservationRepository) ListByRequester(ctx context.Context, requesterID int64) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE requester_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, "list reservations by requester", query, requesterID)
}

// ListByStatus получает заявки в статусе, старые первыми
func (r *ReservationRepository) ListByStatus(ctx context.Context, status model.ReservationStatus) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, "list reservations by status", query, status)
}

// ActiveOn получает заявки pending/approved лаборатории на дату
func (r *ReservationRepository) ActiveOn(ctx context.Context, labID int64, date time.Time) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE lab_id = $1 AND reserve_date = $2 AND status IN ('pending', 'approved')
		ORDER BY start_time
	`
	return r.list(ctx, "list active reservations", query, labID, date)
}

// UpdateStatus обновляет статус заявки
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id int64, status model.ReservationStatus) error {
	affected, err := r.ExecAffected(ctx, `UPDATE reservations SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("reservation not found")
	}

	return nil
}

// Delete удаляет заявку; созданное по ней занятие удаляется каскадно
func (r *ReservationRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("reservation not found")
	}

	return nil
}
