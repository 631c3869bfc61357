package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Freeeeeet/labportal/internal/app"
	"github.com/Freeeeeet/labportal/internal/auth"
	"github.com/Freeeeeet/labportal/internal/config"
	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"go.uber.org/zap"
)

// Выдаёт токен API для пользователя. С -bootstrap-admin создаёт первого
// администратора, если в базе ещё нет ни одного.
func main() {
	userID := flag.Int64("user", 0, "user id to issue a token for")
	bootstrap := flag.String("bootstrap-admin", "", "create an admin with this name when none exists")
	email := flag.String("email", "", "email of the bootstrapped admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(cfg.Environment, "issue_token", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := app.NewPool(ctx, cfg.DBDSN, 2, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	store := repository.NewPgStore(pool, logger, cfg.DBTxAttempts)

	var user *model.User
	switch {
	case *bootstrap != "":
		user, err = bootstrapAdmin(ctx, store, *bootstrap, *email)
	case *userID > 0:
		user, err = store.Users().GetByID(ctx, *userID)
		if err == nil && user == nil {
			err = fmt.Errorf("user %d not found", *userID)
		}
	default:
		fmt.Fprintln(os.Stderr, "either -user or -bootstrap-admin is required")
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("Failed to resolve user", zap.Error(err))
	}

	token, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL).Issue(user)
	if err != nil {
		logger.Fatal("Failed to issue token", zap.Error(err))
	}
	logger.Info("Token issued", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	fmt.Println(token)
}

func bootstrapAdmin(ctx context.Context, store repository.Store, name, email string) (*model.User, error) {
	var admin *model.User
	err := store.InTx(ctx, func(tx repository.Tx) error {
		ids, err := tx.Users().ListIDsByRole(ctx, model.RoleAdmin)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			return fmt.Errorf("admin already exists (id %d), use -user", ids[0])
		}
		admin = &model.User{Name: name, Email: email, Role: model.RoleAdmin}
		return tx.Users().Create(ctx, admin)
	})
	return admin, err
}
