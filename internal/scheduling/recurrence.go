package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MinRepeatWeeks = 1
	MaxRepeatWeeks = 16
)

// ErrInvalidRepeatCount - число повторов вне [1,16]
var ErrInvalidRepeatCount = errors.New("invalid repeat count")

// Series - развёрнутая еженедельная серия
type Series struct {
	Dates []time.Time
	// GroupID равен nil для одиночного занятия
	GroupID *uuid.UUID
}

// Expand возвращает repeatWeeks дат с шагом в неделю начиная с first.
// Новый идентификатор группы выдаётся только при repeatWeeks > 1.
func Expand(first time.Time, repeatWeeks int) (Series, error) {
	if repeatWeeks < MinRepeatWeeks || repeatWeeks > MaxRepeatWeeks {
		return Series{}, fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidRepeatCount, repeatWeeks, MinRepeatWeeks, MaxRepeatWeeks)
	}

	first = DateOf(first)
	dates := make([]time.Time, repeatWeeks)
	for i := range dates {
		dates[i] = first.AddDate(0, 0, 7*i)
	}

	series := Series{Dates: dates}
	if repeatWeeks > 1 {
		id := uuid.New()
		series.GroupID = &id
	}
	return series, nil
}

// ResolveFirstDate выбирает первое занятие: явная дата берётся как есть, даже
// если не совпадает с day, иначе ближайший day строго после today.
func ResolveFirstDate(day time.Weekday, explicit *time.Time, today time.Time) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return DateOf(*explicit)
	}
	return NextDate(day, today, 0)
}
