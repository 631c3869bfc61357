package notify

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/wneessen/go-mail"
)

const defaultEmailTimeout = 30 * time.Second

// EmailConfig - параметры SMTP-сервера
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout ограничивает весь сеанс, если у ctx нет более раннего дедлайна
	Timeout time.Duration
}

// EmailChannel отправляет письма в text/plain
type EmailChannel struct {
	cfg  EmailConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmailTimeout
	}
	c := &EmailChannel{cfg: cfg}
	c.send = c.dialAndSend
	return c
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, to *model.User, p model.NotificationPayload) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := c.message(to.Email, p)
	if err != nil {
		return err
	}
	if err := c.send(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to.Email, err)
	}
	return nil
}

func (c *EmailChannel) message(to string, p model.NotificationPayload) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return nil, fmt.Errorf("mail from %q: %w", c.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("mail to %q: %w", to, err)
	}
	msg.Subject(p.Title)

	body := p.Message + "\r\n"
	if p.URL != "" {
		body += "\r\n" + p.URL + "\r\n"
	}
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// dialAndSend открывает отдельное соединение на каждое письмо
func (c *EmailChannel) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return context.DeadlineExceeded
		}
		timeout = min(timeout, left)
	}

	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(dialWithDeadline),
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}

	client, err := mail.NewClient(c.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// dialWithDeadline переносит дедлайн контекста на соединение, иначе
// чтение приветствия сервера ничем не ограничено
func dialWithDeadline(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
