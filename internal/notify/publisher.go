package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	// ErrNacked - брокер не принял сообщение
	ErrNacked = errors.New("broker nacked message")
	// ErrUnroutable - сообщение не попало ни в одну очередь
	ErrUnroutable = errors.New("message returned as unroutable")
)

type PublisherConfig struct {
	URL string
	Topology
}

// session - одно соединение с брокером в режиме подтверждений.
// Publish возвращает nil только после basic.ack.
type session interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	Closed() bool
	Close() error
}

// Publisher отправляет сообщения outbox в topic-обменник с ключом по виду
// события. Соединение поднимается лениво и восстанавливается после обрыва.
type Publisher struct {
	cfg     PublisherConfig
	logger  *zap.Logger
	dial    func(ctx context.Context) (session, error)
	backoff func() retry.Backoff

	mu   sync.Mutex
	sess session
}

func NewPublisher(cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.WithCappedDuration(5*time.Second, retry.NewExponential(200*time.Millisecond)))
		},
	}
	p.dial = func(context.Context) (session, error) {
		s, err := dialSession(p.cfg, p.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return p
}

// Connect устанавливает соединение заранее, чтобы ошибка была видна при старте
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.session(ctx)
	return err
}

func (p *Publisher) Publish(ctx context.Context, msg *model.OutboxMessage) error {
	body, err := EnvelopeFrom(msg).Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sess, err := p.session(ctx)
	if err != nil {
		return err
	}
	err = sess.Publish(ctx, p.cfg.Exchange, string(msg.Kind), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(msg.ID, 10),
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish outbox %d: %w", msg.ID, err)
	}
	return nil
}

// session возвращает живое соединение, переподключаясь с экспоненциальной паузой
func (p *Publisher) session(ctx context.Context) (session, error) {
	if p.sess != nil && !p.sess.Closed() {
		return p.sess, nil
	}
	if p.sess != nil {
		p.logger.Warn("RabbitMQ publisher connection lost, reconnecting")
		_ = p.sess.Close()
		p.sess = nil
	}

	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		sess, err := p.dial(ctx)
		if err != nil {
			p.logger.Warn("RabbitMQ publisher connect failed", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		p.sess = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	p.logger.Info("RabbitMQ publisher connected", zap.String("exchange", p.cfg.Exchange))
	return p.sess, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	return err
}

type amqpSession struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	returns chan amqp.Return
	closed  atomic.Bool
}

// dialSession открывает соединение, объявляет топологию и включает confirm-режим
func dialSession(cfg PublisherConfig, logger *zap.Logger) (*amqpSession, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) (*amqpSession, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := cfg.Declare(ch); err != nil {
		return fail(err)
	}
	if err := ch.Confirm(false); err != nil {
		return fail(fmt.Errorf("enable confirms: %w", err))
	}

	s := &amqpSession{
		conn:    conn,
		ch:      ch,
		returns: ch.NotifyReturn(make(chan amqp.Return, 1)),
	}
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		var reason *amqp.Error
		select {
		case reason = <-connClosed:
		case reason = <-chClosed:
		}
		s.closed.Store(true)
		if reason != nil {
			logger.Warn("RabbitMQ publisher channel closed",
				zap.Int("code", reason.Code),
				zap.String("reason", reason.Reason),
			)
		}
	}()
	return s, nil
}

func (s *amqpSession) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, true, false, msg)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait confirm: %w", err)
	}
	if !acked {
		return ErrNacked
	}

	// basic.return приходит до basic.ack того же сообщения
	for {
		select {
		case r, ok := <-s.returns:
			if !ok {
				return nil
			}
			if r.MessageId == msg.MessageId {
				return fmt.Errorf("%w: %d %s", ErrUnroutable, r.ReplyCode, r.ReplyText)
			}
		default:
			return nil
		}
	}
}

func (s *amqpSession) Closed() bool {
	return s.closed.Load() || s.conn.IsClosed() || s.ch.IsClosed()
}

func (s *amqpSession) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}
