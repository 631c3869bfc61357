package base

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
		unique    bool
		fk        bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, code: "40001", retryable: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, code: "40P01", retryable: true},
		{name: "wrapped serialization", err: fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"}), code: "40001", retryable: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, code: "23505", unique: true},
		{name: "foreign key", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), code: "23503", fk: true},
		{name: "plain", err: errors.New("connection refused")},
		{name: "nil", err: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, PgCode(tc.err))
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
			assert.Equal(t, tc.unique, IsUniqueViolation(tc.err))
			assert.Equal(t, tc.fk, IsForeignKeyViolation(tc.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(fmt.Errorf("get lab: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(errors.New("timeout")))
}

func TestClockConversion(t *testing.T) {
	pg := ClockToPg(scheduling.NewClock(13, 45))
	assert.True(t, pg.Valid)
	assert.Equal(t, int64((13*60+45)*60_000_000), pg.Microseconds)

	c, err := ClockFromPg(pg)
	require.NoError(t, err)
	assert.Equal(t, "13:45", c.String())

	_, err = ClockFromPg(pgtype.Time{})
	assert.Error(t, err)
}

type tagDB struct {
	tag pgconn.CommandTag
	err error
}

func (d tagDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return d.tag, d.err
}

func (d tagDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, d.err }

func (d tagDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func TestExecAffected(t *testing.T) {
	repo := NewRepository(tagDB{tag: pgconn.NewCommandTag("DELETE 3")})
	n, err := repo.ExecAffected(context.Background(), "DELETE FROM schedules WHERE group_id = $1", "g")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	boom := errors.New("conn closed")
	_, err = NewRepository(tagDB{err: boom}).ExecAffected(context.Background(), "DELETE FROM labs")
	assert.ErrorIs(t, err, boom)
}
