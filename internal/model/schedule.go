package model

import (
	"time"

	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/google/uuid"
)

type ScheduleType string

const (
	ScheduleTypeLecture     ScheduleType = "lecture"
	ScheduleTypeReservation ScheduleType = "reservation" // создано одобрением заявки
)

// Schedule - занятие в лаборатории на конкретную дату
type Schedule struct {
	ID            int64            `json:"id"`
	LabID         int64            `json:"lab_id"`
	Weekday       time.Weekday     `json:"weekday"`
	Date          time.Time        `json:"schedule_date"`
	StartTime     scheduling.Clock `json:"start_time"`
	EndTime       scheduling.Clock `json:"end_time"`
	CourseName    *string          `json:"course_name"`
	LecturerID    *int64           `json:"lecturer_id"`
	LecturerName  *string          `json:"lecturer_name"`
	Type          ScheduleType     `json:"type"`
	ReservationID *int64           `json:"reservation_id"`
	GroupID       *uuid.UUID       `json:"group_id"` // общий для всей серии, nil для одиночного
	RepeatWeeks   *int             `json:"repeat_weeks"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Title возвращает подпись занятия для сообщений и сетки недели
func (s *Schedule) Title() string {
	if s.CourseName != nil && *s.CourseName != "" {
		return *s.CourseName
	}
	if s.Type == ScheduleTypeReservation {
		return "Reservation"
	}
	return "Lecture"
}

func (s *Schedule) Booking() scheduling.Booking {
	return scheduling.Booking{ID: s.ID, Start: s.StartTime, End: s.EndTime, Label: s.Title()}
}

// ScheduleFilter - выборка занятий; нулевые поля не ограничивают
type ScheduleFilter struct {
	LabID   int64
	From    time.Time
	To      time.Time // включительно
	GroupID *uuid.UUID
}
