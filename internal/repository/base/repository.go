package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Коды ошибок PostgreSQL, на которые реагируют репозитории
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// DBTX общий интерфейс пула и транзакции
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository базовый репозиторий с общими методами
type Repository struct {
	db DBTX
}

// NewRepository создаёт новый базовый репозиторий
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// DB возвращает пул или транзакцию, с которой работает репозиторий
func (r *Repository) DB() DBTX {
	return r.db
}

// ExecAffected выполняет команду и возвращает количество затронутых строк
func (r *Repository) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// PgCode возвращает SQLSTATE ошибки PostgreSQL или пустую строку
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return PgCode(err) == CodeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return PgCode(err) == CodeForeignKeyViolation
}

// IsRetryable - транзакцию можно повторить целиком
func IsRetryable(err error) bool {
	code := PgCode(err)
	return code == CodeSerializationFailure || code == CodeDeadlockDetected
}

// ClockToPg переводит время дня в значение колонки TIME
func ClockToPg(c scheduling.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

// ClockFromPg переводит значение колонки TIME во время дня
func ClockFromPg(t pgtype.Time) (scheduling.Clock, error) {
	if !t.Valid {
		return 0, fmt.Errorf("time is null")
	}
	return scheduling.Clock(t.Microseconds / 60_000_000), nil
}
