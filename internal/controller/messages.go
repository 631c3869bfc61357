package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// errorMessage возвращает текст для пользователя по ошибке сервиса
func errorMessage(err error) string {
	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		return fmt.Sprintf("❌ Conflicts with %s-%s on %s",
			conflict.With.Start, conflict.With.End, conflict.Date.Format(time.DateOnly))
	}
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return "❌ Your Telegram account is not linked to a portal user"
	case errors.Is(err, service.ErrUnauthorized):
		return "❌ This command is for administrators"
	case errors.Is(err, service.ErrLabNotFound):
		return "❌ Lab not found"
	case errors.Is(err, service.ErrReservationNotFound):
		return "❌ Reservation not found"
	case errors.Is(err, service.ErrInvalidTransition):
		return "❌ Reservation was already decided"
	default:
		return "❌ Something went wrong. Try again later."
	}
}

func (c *BotController) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if _, err := c.api.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func (c *BotController) answerCallback(ctx context.Context, callbackID, text string, alert bool) {
	_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		c.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

func formatLab(l *model.Lab) string {
	line := fmt.Sprintf("#%d %s", l.ID, l.Name)
	if l.Capacity != nil {
		line += fmt.Sprintf(" (%d seats)", *l.Capacity)
	}
	if !l.IsAvailable() {
		line += " 🔧 maintenance"
	}
	return line
}

func formatReservation(r *model.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Reservation #%d\n", r.ID)
	if r.Lab != nil {
		fmt.Fprintf(&b, "🧪 %s\n", r.Lab.Name)
	}
	fmt.Fprintf(&b, "📅 %s %s, %s-%s\n", r.Weekday, r.Date.Format(time.DateOnly), r.StartTime, r.EndTime)
	if r.Requester != nil {
		fmt.Fprintf(&b, "👤 %s\n", r.Requester.Name)
	}
	fmt.Fprintf(&b, "📝 %s", r.Purpose)
	return b.String()
}
