package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	c := NewClock(time.Time{})
	assert.Equal(t, ReferenceTime(), c.Now())
	assert.Equal(t, time.Monday, c.Now().Weekday())
}

func TestClockAdvanceAndSet(t *testing.T) {
	c := NewClock(time.Time{})
	got := c.Advance(48 * time.Hour)
	assert.Equal(t, time.Wednesday, got.Weekday())

	target := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.NowFunc()())
}

func TestNilClockFallsBackToWallTime(t *testing.T) {
	var c *Clock
	before := time.Now()
	assert.False(t, c.NowFunc()().Before(before))
}
