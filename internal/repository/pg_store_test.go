package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

func TestRetryTx_RetriesSerializationFailure(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), 5, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		if calls < 3 {
			return serializationFailure()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTx_RetriesDeadlock(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), 3, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryTx_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), 4, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		return serializationFailure()
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "transaction retries exhausted")

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "40001", pgErr.Code)
}

func TestRetryTx_OtherErrorsReturnImmediately(t *testing.T) {
	boom := errors.New("lab not found")
	unique := &pgconn.PgError{Code: "23505"}

	for _, want := range []error{boom, unique} {
		calls := 0
		err := retryTx(context.Background(), 5, zaptest.NewLogger(t), func(context.Context) error {
			calls++
			return want
		})
		assert.ErrorIs(t, err, want)
		assert.Equal(t, 1, calls)
		assert.NotContains(t, err.Error(), "exhausted")
	}
}

func TestRetryTx_SingleAttempt(t *testing.T) {
	calls := 0
	err := retryTx(context.Background(), 1, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		return serializationFailure()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTx_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryTx(ctx, 5, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		cancel()
		return serializationFailure()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// execRecorder - DBTX, запоминающий последний Exec
type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("SELECT 1"), r.err
}

func (r *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (r *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestLockSlot(t *testing.T) {
	db := &execRecorder{}
	repos := newPgRepos(db)

	require.NoError(t, repos.LockSlot(context.Background(), 7, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, db.sql, "pg_advisory_xact_lock")
	assert.Equal(t, []any{int32(7), int32(20332)}, db.args)

	db.err = errors.New("conn closed")
	err := repos.LockSlot(context.Background(), 7, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, db.err)
	assert.Contains(t, err.Error(), "lock slot")
}

func TestSlotLockKey_DistinctDays(t *testing.T) {
	lab, monday := slotLockKey(3, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	_, tuesday := slotLockKey(3, time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, int32(3), lab)
	assert.Equal(t, monday+1, tuesday)
}
