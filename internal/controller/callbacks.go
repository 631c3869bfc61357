package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// decisionKeyboard - кнопки одобрения и отклонения заявки
func decisionKeyboard(reservationID int64) *models.InlineKeyboardMarkup {
	id := strconv.FormatInt(reservationID, 10)
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: callbackApprove + id},
			{Text: "❌ Reject", CallbackData: callbackReject + id},
		}},
	}
}

// parseDecision разбирает "approve:123" / "reject:123"
func parseDecision(data string) (approve bool, id int64, err error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok || (action != "approve" && action != "reject") {
		return false, 0, fmt.Errorf("invalid callback data %q", data)
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return false, 0, fmt.Errorf("invalid callback data %q", data)
	}
	return action == "approve", id, nil
}

func (c *BotController) handleCallback(ctx context.Context, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	approve, id, err := parseDecision(callback.Data)
	if err != nil {
		c.answerCallback(ctx, callback.ID, "❌ Invalid button", true)
		return
	}

	user, err := c.svc.Users.GetByTelegramID(ctx, callback.From.ID)
	if err != nil {
		c.answerCallback(ctx, callback.ID, errorMessage(err), true)
		return
	}
	actor := service.ActorFor(user)

	var res *model.Reservation
	if approve {
		res, err = c.svc.Reservations.Approve(ctx, actor, id)
	} else {
		res, err = c.svc.Reservations.Reject(ctx, actor, id)
	}
	if err != nil {
		c.logger.Warn("Reservation decision failed",
			zap.Int64("reservation_id", id),
			zap.Bool("approve", approve),
			zap.String("kind", service.ErrorKind(err)),
			zap.Error(err),
		)
		c.answerCallback(ctx, callback.ID, errorMessage(err), true)
		return
	}

	verdict := "✅ Approved"
	if res.Status == model.ReservationStatusRejected {
		verdict = "❌ Rejected"
	}
	c.answerCallback(ctx, callback.ID, verdict, false)

	// Обновляем сообщение, убирая кнопки
	if msg := callback.Message.Message; msg != nil {
		_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      fmt.Sprintf("%s\n\n%s by %s", formatReservation(res), verdict, user.Name),
		})
		if err != nil {
			c.logger.Warn("Failed to edit decision message", zap.Error(err))
		}
	}
}
