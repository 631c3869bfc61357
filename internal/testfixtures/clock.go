package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime - момент по умолчанию: понедельник 2025-09-01 08:00 UTC
func ReferenceTime() time.Time {
	return time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC)
}

// Clock - управляемый источник времени для тестов
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock создаёт часы на start или на ReferenceTime при нулевом start
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance сдвигает часы вперёд и возвращает новое время
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
