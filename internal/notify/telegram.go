package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MessageSender - часть *bot.Bot, нужная каналу
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramChannel пишет пользователям с привязанным Telegram и, если задан
// чат, публикует туда каждое событие.
type TelegramChannel struct {
	sender MessageSender
	chatID int64
}

func NewTelegramChannel(sender MessageSender, broadcastChatID int64) *TelegramChannel {
	return &TelegramChannel{sender: sender, chatID: broadcastChatID}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, to *model.User, p model.NotificationPayload) error {
	if to.TelegramID == nil {
		return ErrNoAddress
	}
	return c.send(ctx, *to.TelegramID, p)
}

// Broadcast пишет в общий чат; без чата ничего не делает
func (c *TelegramChannel) Broadcast(ctx context.Context, p model.NotificationPayload) error {
	if c.chatID == 0 {
		return nil
	}
	return c.send(ctx, c.chatID, p)
}

func (c *TelegramChannel) send(ctx context.Context, chatID int64, p model.NotificationPayload) error {
	_, err := c.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   FormatText(p),
	})
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// FormatText собирает короткое сообщение для чата
func FormatText(p model.NotificationPayload) string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Message != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Message)
	}
	if p.URL != "" {
		b.WriteString("\n")
		b.WriteString(p.URL)
	}
	return b.String()
}
