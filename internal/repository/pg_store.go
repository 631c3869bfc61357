package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const defaultTxAttempts = 5

// PgStore реализует Store поверх pgxpool
type PgStore struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	attempts int
	pgRepos
}

// NewPgStore создаёт хранилище; attempts <= 0 означает значение по умолчанию
func NewPgStore(pool *pgxpool.Pool, logger *zap.Logger, attempts int) *PgStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}
	return &PgStore{
		pool:     pool,
		logger:   logger,
		attempts: attempts,
		pgRepos:  newPgRepos(pool),
	}
}

// InTx выполняет fn в SERIALIZABLE транзакции. При ошибке сериализации
// или дедлоке транзакция повторяется целиком, не более attempts раз.
func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return retryTx(ctx, s.attempts, s.logger, func(ctx context.Context) error {
		return s.runTx(ctx, fn)
	})
}

const txBackoffBase = 10 * time.Millisecond

func retryTx(ctx context.Context, attempts int, logger *zap.Logger, run func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(txBackoffBase))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := run(ctx)
		if err == nil || !base.IsRetryable(err) {
			return err
		}

		logger.Warn("Transaction serialization failure, retrying",
			zap.Int("attempt", attempt),
			zap.String("sqlstate", base.PgCode(err)))
		return retry.RetryableError(err)
	})
	if err != nil && base.IsRetryable(err) {
		return fmt.Errorf("transaction retries exhausted: %w", err)
	}
	return err
}

func (s *PgStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(newPgRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgRepos связывает репозитории с одним соединением или транзакцией
type pgRepos struct {
	db            base.DBTX
	labs          *LabRepository
	users         *UserRepository
	reservations  *ReservationRepository
	schedules     *ScheduleRepository
	notifications *NotificationRepository
	outbox        *OutboxRepository
}

func newPgRepos(db base.DBTX) pgRepos {
	return pgRepos{
		db:            db,
		labs:          NewLabRepository(db),
		users:         NewUserRepository(db),
		reservations:  NewReservationRepository(db),
		schedules:     NewScheduleRepository(db),
		notifications: NewNotificationRepository(db),
		outbox:        NewOutboxRepository(db),
	}
}

func (r pgRepos) Labs() LabStore                   { return r.labs }
func (r pgRepos) Users() UserStore                 { return r.users }
func (r pgRepos) Reservations() ReservationStore   { return r.reservations }
func (r pgRepos) Schedules() ScheduleStore         { return r.schedules }
func (r pgRepos) Notifications() NotificationStore { return r.notifications }
func (r pgRepos) Outbox() OutboxStore              { return r.outbox }

// LockSlot сериализует проверку и запись для пары (лаборатория, дата)
func (r pgRepos) LockSlot(ctx context.Context, labID int64, date time.Time) error {
	lab, day := slotLockKey(labID, date)
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, $2::int4)`, lab, day)
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

// slotLockKey - ключ advisory-блокировки: лаборатория и номер дня от эпохи
func slotLockKey(labID int64, date time.Time) (int32, int32) {
	return int32(labID), int32(date.Unix() / 86400)
}
