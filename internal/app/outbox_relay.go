package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"go.uber.org/zap"
)

// OutboxPublisher отправляет сообщение outbox в брокер
type OutboxPublisher interface {
	Publish(ctx context.Context, msg *model.OutboxMessage) error
}

// OutboxRelay периодически публикует накопленные события outbox
type OutboxRelay struct {
	store     repository.Store
	publisher OutboxPublisher
	interval  time.Duration
	batch     int
	now       func() time.Time
	logger    *zap.Logger
	stopChan  chan struct{}
}

func NewOutboxRelay(store repository.Store, publisher OutboxPublisher, interval time.Duration, batch int, logger *zap.Logger) *OutboxRelay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batch:     batch,
		now:       time.Now,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start запускает фоновую публикацию
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))
	go r.run(ctx)
}

// Stop останавливает фоновую публикацию
func (r *OutboxRelay) Stop() {
	r.logger.Info("Stopping outbox relay")
	close(r.stopChan)
}

func (r *OutboxRelay) run(ctx context.Context) {
	r.drain(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.drain(ctx)
		case <-r.stopChan:
			r.logger.Info("Outbox relay stopped")
			return
		case <-ctx.Done():
			r.logger.Info("Outbox relay cancelled")
			return
		}
	}
}

// drain публикует пачки, пока они заполняются целиком
func (r *OutboxRelay) drain(ctx context.Context) {
	for {
		published, claimed, err := r.RelayOnce(ctx)
		if err != nil {
			r.logger.Error("Outbox relay failed", zap.Error(err))
			return
		}
		if claimed < r.batch || published == 0 {
			return
		}
	}
}

// RelayOnce публикует одну пачку. Сообщения блокируются на время
// транзакции, так что параллельные релеи не публикуют их дважды.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (published, claimed int, err error) {
	err = r.store.InTx(ctx, func(tx repository.Tx) error {
		published, claimed = 0, 0

		msgs, err := tx.Outbox().ClaimPending(ctx, r.batch)
		if err != nil {
			return err
		}
		claimed = len(msgs)

		for _, msg := range msgs {
			if pubErr := r.publisher.Publish(ctx, msg); pubErr != nil {
				r.logger.Warn("Outbox publish failed",
					zap.Int64("outbox_id", msg.ID),
					zap.Int("attempts", msg.Attempts+1),
					zap.Error(pubErr),
				)
				if err := tx.Outbox().MarkFailed(ctx, msg.ID, pubErr.Error()); err != nil {
					return err
				}
				continue
			}
			if err := tx.Outbox().MarkPublished(ctx, msg.ID, r.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if claimed > 0 {
		r.logger.Info("Outbox batch relayed",
			zap.Int("claimed", claimed),
			zap.Int("published", published),
		)
	}
	return published, claimed, nil
}
