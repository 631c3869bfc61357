package model

import "time"

type LabStatus string

const (
	LabStatusAvailable   LabStatus = "available"
	LabStatusMaintenance LabStatus = "maintenance" // новые заявки не принимаются
)

type Lab struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Capacity  *int      `json:"capacity"` // nil - вместимость не задана
	Status    LabStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAvailable проверяет, принимает ли лаборатория заявки
func (l *Lab) IsAvailable() bool {
	return l.Status == LabStatusAvailable
}
