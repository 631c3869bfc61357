package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"go.uber.org/zap"
)

type UserInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Role       string `json:"role" validate:"required,oneof=admin lecturer student"`
	TelegramID *int64 `json:"telegram_id" validate:"omitempty,gt=0"`
}

type UserService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, logger: logger}
}

// Create регистрирует пользователя; доступно администратору
func (s *UserService) Create(ctx context.Context, actor Actor, in UserInput) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in).orNil(); err != nil {
		return nil, err
	}

	user := &model.User{
		Name:       in.Name,
		Email:      in.Email,
		Role:       model.Role(in.Role),
		TelegramID: in.TelegramID,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fieldError("telegram_id", "already linked to another user")
		}
		return nil, err
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.store.Users().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ActorFor строит Actor по пользователю
func ActorFor(user *model.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role}
}
