package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/labportal/internal/export"
	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	callbackApprove = "approve:"
	callbackReject  = "reject:"
)

// requireUser находит пользователя портала по Telegram ID
func (c *BotController) requireUser(ctx context.Context, chatID, telegramID int64) (*model.User, bool) {
	user, err := c.svc.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, service.ErrUserNotFound) {
			c.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		}
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return nil, false
	}
	return user, true
}

// handleStart показывает привязанную учётную запись
func (c *BotController) handleStart(ctx context.Context, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, ok := c.requireUser(ctx, chatID, update.Message.From.ID)
	if !ok {
		return
	}

	text := fmt.Sprintf(
		"👋 Hello, %s!\n\n"+
			"Linked portal account #%d, role: %s.\n\n"+
			"/labs - List labs\n"+
			"/week <lab_id> - Week matrix of a lab\n"+
			"/help - Help",
		user.Name, user.ID, user.Role,
	)
	if user.IsAdmin() {
		text += "\n/pending - Pending reservations"
	}
	c.sendMessage(ctx, chatID, text, nil)
}

func (c *BotController) handleHelp(ctx context.Context, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.sendMessage(ctx, update.Message.Chat.ID,
		"📚 Commands:\n\n"+
			"/start - Show linked account\n"+
			"/labs - List labs\n"+
			"/week <lab_id> - Week matrix of a lab as an image\n"+
			"/pending - Pending reservations with approve and reject buttons (admin)",
		nil)
}

func (c *BotController) handleLabs(ctx context.Context, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	labs, err := c.svc.Labs.List(ctx)
	if err != nil {
		c.logger.Error("Failed to list labs", zap.Error(err))
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return
	}
	if len(labs) == 0 {
		c.sendMessage(ctx, chatID, "🧪 No labs yet.", nil)
		return
	}

	lines := make([]string, 0, len(labs)+1)
	lines = append(lines, "🧪 Labs:")
	for _, l := range labs {
		lines = append(lines, formatLab(l))
	}
	c.sendMessage(ctx, chatID, strings.Join(lines, "\n"), nil)
}

// handleWeek отправляет картинку текущей недели: /week <lab_id>
func (c *BotController) handleWeek(ctx context.Context, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := strings.Fields(update.Message.Text)
	if len(args) != 2 {
		c.sendMessage(ctx, chatID, "Usage: /week <lab_id>", nil)
		return
	}
	labID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || labID <= 0 {
		c.sendMessage(ctx, chatID, "Usage: /week <lab_id>", nil)
		return
	}

	lab, err := c.svc.Labs.Get(ctx, labID)
	if err != nil {
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return
	}
	now := c.now()
	monday := c.svc.Schedules.WeekOf(now)
	list, err := c.svc.Schedules.ListLabRange(ctx, labID, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		c.logger.Error("Failed to list schedules", zap.Int64("lab_id", labID), zap.Error(err))
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return
	}

	png, err := export.RenderLabWeek(export.WeekView{Lab: lab, WeekStart: monday, Schedules: list, Now: now})
	if err != nil {
		c.logger.Error("Failed to render week", zap.Int64("lab_id", labID), zap.Error(err))
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return
	}

	_, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "week.png", Data: bytes.NewReader(png)},
		Caption: fmt.Sprintf("🗓 %s, week of %s", lab.Name, monday.Format("02.01.2006")),
	})
	if err != nil {
		c.logger.Error("Failed to send week image", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// handlePending выводит ожидающие заявки с кнопками одобрения
func (c *BotController) handlePending(ctx context.Context, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, ok := c.requireUser(ctx, chatID, update.Message.From.ID)
	if !ok {
		return
	}

	list, err := c.svc.Reservations.ListByStatus(ctx, service.ActorFor(user), model.ReservationStatusPending)
	if err != nil {
		if !errors.Is(err, service.ErrUnauthorized) {
			c.logger.Error("Failed to list pending reservations", zap.Error(err))
		}
		c.sendMessage(ctx, chatID, errorMessage(err), nil)
		return
	}
	if len(list) == 0 {
		c.sendMessage(ctx, chatID, "✅ No pending reservations.", nil)
		return
	}

	for _, r := range list {
		c.sendMessage(ctx, chatID, formatReservation(r), decisionKeyboard(r.ID))
	}
}
