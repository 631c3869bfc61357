package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWeekday - неизвестное название дня недели
var ErrInvalidWeekday = errors.New("invalid weekday")

// ErrInvalidClock - время не в формате HH:MM
var ErrInvalidClock = errors.New("invalid time of day")

// Clock - время суток в минутах от полуночи
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock принимает "HH:MM" и "HH:MM:SS", секунды отбрасываются
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}

	return NewClock(hour, minute), nil
}

func (c Clock) Hour() int { return int(c) / 60 }

func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Duration() time.Duration { return time.Duration(c) * time.Minute }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Overlaps проверяет пересечение [aStart,aEnd) и [bStart,bEnd).
// Соседние интервалы (09:00-10:00 и 10:00-11:00) не пересекаются.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && aEnd > bStart
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday разбирает английское название дня без учёта регистра
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
	}
	return wd, nil
}

// DateOf возвращает календарную дату t как полночь UTC
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDate возвращает первую дату с днём wd строго после from, сдвинутую
// на weeksAhead недель. Если from уже приходится на wd, результат через неделю.
func NextDate(wd time.Weekday, from time.Time, weeksAhead int) time.Time {
	from = DateOf(from)
	delta := (int(wd) - int(from.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return from.AddDate(0, 0, delta+7*weeksAhead)
}

// NextDateForWeekday - NextDate для дня, заданного названием
func NextDateForWeekday(name string, from time.Time, weeksAhead int) (time.Time, error) {
	wd, err := ParseWeekday(name)
	if err != nil {
		return time.Time{}, err
	}
	return NextDate(wd, from, weeksAhead), nil
}
