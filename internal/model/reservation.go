package model

import (
	"time"

	"github.com/Freeeeeet/labportal/internal/scheduling"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"   // Ожидает решения администратора
	ReservationStatusApproved  ReservationStatus = "approved"  // Одобрена, создано занятие
	ReservationStatusRejected  ReservationStatus = "rejected"  // Отклонена администратором
	ReservationStatusCancelled ReservationStatus = "cancelled" // Отменена владельцем
)

// IsActive - заявка занимает слот лаборатории
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusApproved
}

type Reservation struct {
	ID          int64             `json:"id"`
	RequesterID int64             `json:"requester_id"`
	LabID       int64             `json:"lab_id"`
	Weekday     time.Weekday      `json:"weekday"` // 1 = понедельник ... 6 = суббота
	Date        time.Time         `json:"date"`
	StartTime   scheduling.Clock  `json:"start_time"`
	EndTime     scheduling.Clock  `json:"end_time"`
	Purpose     string            `json:"purpose"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Lab       *Lab  `json:"lab,omitempty"`
	Requester *User `json:"requester,omitempty"`
}

func (r *Reservation) Booking() scheduling.Booking {
	return scheduling.Booking{ID: r.ID, Start: r.StartTime, End: r.EndTime, Label: r.Purpose}
}
