package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	URL string
	Topology
	Prefetch int
	Tag      string
}

// Handler обрабатывает конверт; ошибка возвращает сообщение в очередь
type Handler func(ctx context.Context, env Envelope) error

type Consumer struct {
	cfg    ConsumerConfig
	logger *zap.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{cfg: cfg, logger: logger}
}

// Connect подключается к брокеру и объявляет топологию
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := c.cfg.Declare(ch); err != nil {
		return fail(err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("set qos: %w", err))
	}

	c.conn, c.ch = conn, ch
	return nil
}

// Run читает очередь до отмены ctx или закрытия канала
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d, handle)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handle Handler) {
	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		c.logger.Warn("Undecodable delivery dead-lettered",
			zap.String("routing_key", d.RoutingKey),
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, env); err != nil {
		c.logger.Error("Delivery handling failed, requeueing",
			zap.Int64("outbox_id", env.ID),
			zap.Error(err),
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
