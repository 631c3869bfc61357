package controller

import (
	"context"
	"time"

	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Messenger - методы *bot.Bot, которыми пользуются обработчики
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Services - сервисы, которые вызывает бот
type Services struct {
	Users        *service.UserService
	Labs         *service.LabService
	Reservations *service.ReservationService
	Schedules    *service.ScheduleService
}

type BotController struct {
	bot    *bot.Bot
	api    Messenger
	svc    Services
	now    func() time.Time
	logger *zap.Logger
}

func NewBotController(botInstance *bot.Bot, svc Services, logger *zap.Logger) *BotController {
	c := newController(botInstance, svc, logger)
	c.bot = botInstance
	return c
}

func newController(api Messenger, svc Services, logger *zap.Logger) *BotController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotController{
		api:    api,
		svc:    svc,
		now:    time.Now,
		logger: logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.adapt(c.handleStart))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.adapt(c.handleHelp))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/labs", bot.MatchTypeExact, c.adapt(c.handleLabs))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/week", bot.MatchTypePrefix, c.adapt(c.handleWeek))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypeExact, c.adapt(c.handlePending))

	// Нажатия на inline кнопки
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackApprove, bot.MatchTypePrefix, c.adapt(c.handleCallback))
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackReject, bot.MatchTypePrefix, c.adapt(c.handleCallback))

	return c.setCommands(ctx)
}

// adapt отбрасывает *bot.Bot: обработчики работают через Messenger
func (c *BotController) adapt(fn func(ctx context.Context, update *models.Update)) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		fn(ctx, update)
	}
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Show linked account"},
		{Command: "help", Description: "❓ Command help"},
		{Command: "labs", Description: "🧪 List labs"},
		{Command: "week", Description: "🗓 Week matrix of a lab: /week <lab_id>"},
		{Command: "pending", Description: "📥 Pending reservations (admin)"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает long polling; блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
