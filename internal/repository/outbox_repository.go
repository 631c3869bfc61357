package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository/base"
)

type OutboxRepository struct {
	*base.Repository
}

func NewOutboxRepository(db base.DBTX) *OutboxRepository {
	return &OutboxRepository{Repository: base.NewRepository(db)}
}

// Enqueue записывает событие; вызывается в транзакции перехода состояния
func (r *OutboxRepository) Enqueue(ctx context.Context, msg *model.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (kind, recipients, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.DB().QueryRow(ctx, query, msg.Kind, msg.Recipients, msg.Payload).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}

	return nil
}

// ClaimPending блокирует неопубликованные сообщения; занятые другим
// релеем строки пропускаются
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	query := `
		SELECT id, kind, recipients, payload, attempts, last_error, published_at, created_at
		FROM outbox_messages
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.DB().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.OutboxMessage
	for rows.Next() {
		var msg model.OutboxMessage
		err := rows.Scan(
			&msg.ID,
			&msg.Kind,
			&msg.Recipients,
			&msg.Payload,
			&msg.Attempts,
			&msg.LastError,
			&msg.PublishedAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

// MarkPublished отмечает сообщение отправленным
func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.DB().Exec(ctx, `UPDATE outbox_messages SET published_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// MarkFailed увеличивает счётчик попыток и сохраняет причину
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1 WHERE id = $2`

	if _, err := r.DB().Exec(ctx, query, reason, id); err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}
