package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource map[string][]Booking

func (f fixedSource) BookingsOn(_ context.Context, labID int64, d time.Time) ([]Booking, error) {
	return f[d.Format(time.DateOnly)], nil
}

func TestChecker_Find(t *testing.T) {
	ctx := context.Background()
	day := date(2025, time.September, 1)
	src := fixedSource{
		"2025-09-01": {
			{ID: 1, Start: NewClock(9, 0), End: NewClock(10, 0), Label: "Algorithms"},
			{ID: 2, Start: NewClock(13, 0), End: NewClock(15, 0)},
		},
	}
	checker := NewChecker(src)

	t.Run("overlap is found", func(t *testing.T) {
		b, err := checker.Find(ctx, 1, day, NewClock(9, 30), NewClock(11, 0), 0)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, int64(1), b.ID)
	})

	t.Run("back to back is free", func(t *testing.T) {
		ok, err := checker.HasConflict(ctx, 1, day, NewClock(10, 0), NewClock(11, 0), 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("excluded booking is skipped", func(t *testing.T) {
		ok, err := checker.HasConflict(ctx, 1, day, NewClock(9, 0), NewClock(10, 0), 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other dates are not consulted", func(t *testing.T) {
		ok, err := checker.HasConflict(ctx, 1, day.AddDate(0, 0, 7), NewClock(9, 0), NewClock(10, 0), 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestChecker_CheckSeriesReportsConflictingDate(t *testing.T) {
	src := fixedSource{
		"2025-09-15": {{ID: 7, Start: NewClock(8, 30), End: NewClock(9, 30), Label: "Networks"}},
	}
	checker := NewChecker(src)

	series, err := Expand(date(2025, time.September, 1), 4)
	require.NoError(t, err)

	err = checker.CheckSeries(context.Background(), 1, series.Dates, NewClock(8, 0), NewClock(10, 0), 0)
	require.ErrorIs(t, err, ErrConflict)

	var cErr *ConflictError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, date(2025, time.September, 15), cErr.Date)
	assert.Equal(t, int64(7), cErr.With.ID)
	assert.Contains(t, cErr.Error(), "2025-09-15")
	assert.Contains(t, cErr.Error(), "Networks")
}

func TestChecker_SourceError(t *testing.T) {
	boom := errors.New("db down")
	checker := NewChecker(SourceFunc(func(context.Context, int64, time.Time) ([]Booking, error) {
		return nil, boom
	}))

	_, err := checker.HasConflict(context.Background(), 1, date(2025, 1, 6), NewClock(9, 0), NewClock(10, 0), 0)
	assert.ErrorIs(t, err, boom)
}
