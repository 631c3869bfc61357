package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConflict - пересечение с существующей бронью той же лаборатории и даты
var ErrConflict = errors.New("schedule conflict")

// Booking - занятый интервал лаборатории в одну дату
type Booking struct {
	ID    int64
	Start Clock
	End   Clock
	Label string
}

// Source отдаёт брони лаборатории на конкретную дату
type Source interface {
	BookingsOn(ctx context.Context, labID int64, date time.Time) ([]Booking, error)
}

// SourceFunc превращает функцию в Source
type SourceFunc func(ctx context.Context, labID int64, date time.Time) ([]Booking, error)

func (f SourceFunc) BookingsOn(ctx context.Context, labID int64, date time.Time) ([]Booking, error) {
	return f(ctx, labID, date)
}

// ConflictError описывает проверяемый слот и бронь, с которой он пересёкся
type ConflictError struct {
	LabID int64
	Date  time.Time
	Start Clock
	End   Clock
	With  Booking
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("schedule conflict on %s %s-%s with %s-%s",
		e.Date.Format(time.DateOnly), e.Start, e.End, e.With.Start, e.With.End)
	if e.With.Label != "" {
		msg += " (" + e.With.Label + ")"
	}
	return msg
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Checker ищет пересечения по Source и ничего не пишет
type Checker struct {
	source Source
}

func NewChecker(source Source) *Checker {
	return &Checker{source: source}
}

// Find возвращает первую бронь, пересекающую [start,end) в эту дату.
// Бронь с ID == excludeID пропускается, 0 не исключает ничего.
func (c *Checker) Find(ctx context.Context, labID int64, date time.Time, start, end Clock, excludeID int64) (*Booking, error) {
	bookings, err := c.source.BookingsOn(ctx, labID, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	for i := range bookings {
		b := bookings[i]
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		if Overlaps(start, end, b.Start, b.End) {
			return &b, nil
		}
	}
	return nil, nil
}

// HasConflict сообщает, занят ли слот
func (c *Checker) HasConflict(ctx context.Context, labID int64, date time.Time, start, end Clock, excludeID int64) (bool, error) {
	b, err := c.Find(ctx, labID, date, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// Check - Find, возвращающий *ConflictError при пересечении
func (c *Checker) Check(ctx context.Context, labID int64, date time.Time, start, end Clock, excludeID int64) error {
	b, err := c.Find(ctx, labID, date, start, end, excludeID)
	if err != nil {
		return err
	}
	if b != nil {
		return &ConflictError{LabID: labID, Date: DateOf(date), Start: start, End: end, With: *b}
	}
	return nil
}

// CheckSeries проверяет каждую дату и останавливается на первом конфликте
func (c *Checker) CheckSeries(ctx context.Context, labID int64, dates []time.Time, start, end Clock, excludeID int64) error {
	for _, d := range dates {
		if err := c.Check(ctx, labID, d, start, end, excludeID); err != nil {
			return err
		}
	}
	return nil
}
