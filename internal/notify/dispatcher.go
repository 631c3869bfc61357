package notify

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoAddress - у получателя нет адреса в канале. Такая доставка
// пропускается без повторов.
var ErrNoAddress = errors.New("recipient has no address on channel")

// Channel доставляет уведомление одному пользователю
type Channel interface {
	Name() string
	Send(ctx context.Context, to *model.User, p model.NotificationPayload) error
}

// Broadcaster публикует событие один раз, например в общий чат
type Broadcaster interface {
	Name() string
	Broadcast(ctx context.Context, p model.NotificationPayload) error
}

// UserLookup находит получателей по id, подходит repository.UserStore
type UserLookup interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*model.User, error)
}

type DispatcherConfig struct {
	Attempts uint64
	Backoff  time.Duration
	// Parallel ограничивает число одновременных доставок одного конверта
	Parallel int
}

type Dispatcher struct {
	users        UserLookup
	channels     []Channel
	broadcasters []Broadcaster
	cfg          DispatcherConfig
	logger       *zap.Logger
}

func NewDispatcher(users UserLookup, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{users: users, cfg: cfg, logger: logger}
}

func (d *Dispatcher) AddChannel(ch Channel) *Dispatcher {
	d.channels = append(d.channels, ch)
	return d
}

func (d *Dispatcher) AddBroadcaster(b Broadcaster) *Dispatcher {
	d.broadcasters = append(d.broadcasters, b)
	return d
}

// Dispatch рассылает конверт по всем каналам и получателям. Доставка,
// не прошедшая после всех попыток, логируется и отбрасывается. Наружу
// возвращаются только ошибки поиска получателей и отмена контекста.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	recipients, err := d.users.GetByIDs(ctx, env.Recipients)
	if err != nil {
		return err
	}
	if len(recipients) < len(env.Recipients) {
		d.logger.Warn("Some recipients no longer exist",
			zap.Int64("outbox_id", env.ID),
			zap.Int("requested", len(env.Recipients)),
			zap.Int("found", len(recipients)),
		)
	}

	g := &errgroup.Group{}
	g.SetLimit(d.cfg.Parallel)

	for _, ch := range d.channels {
		for _, to := range recipients {
			g.Go(func() error {
				return d.deliver(ctx, env, ch.Name(), zap.Int64("user_id", to.ID), func(ctx context.Context) error {
					return ch.Send(ctx, to, env.Payload)
				})
			})
		}
	}
	for _, b := range d.broadcasters {
		g.Go(func() error {
			return d.deliver(ctx, env, b.Name(), zap.Skip(), func(ctx context.Context) error {
				return b.Broadcast(ctx, env.Payload)
			})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	d.logger.Info("Notification dispatched",
		zap.Int64("outbox_id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.Int("recipients", len(recipients)),
	)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope, channel string, target zap.Field, send func(context.Context) error) error {
	backoff := retry.WithMaxRetries(d.cfg.Attempts-1, retry.NewConstant(d.cfg.Backoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := send(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNoAddress):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		d.logger.Warn("Notification delivery failed",
			zap.String("channel", channel),
			zap.Int64("outbox_id", env.ID),
			target,
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	d.logger.Error("Notification delivery gave up",
		zap.String("channel", channel),
		zap.Int64("outbox_id", env.ID),
		target,
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
	return nil
}
