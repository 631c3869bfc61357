package testfixtures

import (
	"context"
	"testing"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/stretchr/testify/require"
)

// MustLab создаёт доступную лабораторию
func MustLab(t testing.TB, store repository.Store, name string) *model.Lab {
	t.Helper()
	lab := &model.Lab{Name: name, Status: model.LabStatusAvailable}
	require.NoError(t, store.Labs().Create(context.Background(), lab))
	return lab
}

// MustUser создаёт пользователя с ролью
func MustUser(t testing.TB, store repository.Store, name string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{Name: name, Email: name + "@campus.test", Role: role}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func Ptr[T any](v T) *T {
	return &v
}
