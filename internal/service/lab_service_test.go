package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lab, err := env.labs.Create(ctx, env.admin, LabInput{Name: "Optics", Capacity: ptr(24)})
	require.NoError(t, err)
	assert.Equal(t, model.LabStatusAvailable, lab.Status)

	_, err = env.labs.Create(ctx, env.admin, LabInput{Name: "Optics"})
	assert.ErrorIs(t, err, ErrLabNameTaken)

	_, err = env.labs.Create(ctx, env.student, LabInput{Name: "Mine"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.labs.Create(ctx, env.admin, LabInput{Name: "Bad", Capacity: ptr(0), Status: "closed"})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.FieldErrors, "capacity")
	assert.Contains(t, vErr.FieldErrors, "status")

	updated, err := env.labs.Update(ctx, env.admin, lab.ID, LabInput{Name: "Optics 2", Status: "maintenance"})
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable())
	assert.Nil(t, updated.Capacity)

	_, err = env.labs.Update(ctx, env.admin, 404, LabInput{Name: "Ghost"})
	assert.ErrorIs(t, err, ErrLabNotFound)

	list, err := env.labs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Optics 2", list[0].Name)
}

func TestLabService_DeleteRefusedWhileScheduled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "Physics")

	sch, err := env.schedules.CreateOne(ctx, env.admin, ScheduleInput{
		LabID: lab.ID, Day: "Monday", StartTime: "08:00", EndTime: "09:00",
	})
	require.NoError(t, err)
	env.submit(t, env.student, lab.ID, "Tuesday", "08:00", "09:00")

	err = env.labs.Delete(ctx, env.admin, lab.ID)
	require.ErrorIs(t, err, ErrLabInUse)

	require.NoError(t, env.schedules.DeleteOne(ctx, env.admin, sch.ID))
	require.NoError(t, env.labs.Delete(ctx, env.admin, lab.ID))

	_, err = env.labs.Get(ctx, lab.ID)
	assert.ErrorIs(t, err, ErrLabNotFound)

	mine, err := env.reservations.ListMine(ctx, env.student)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestUserService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tg := int64(777001)

	user, err := env.users.Create(ctx, env.admin, UserInput{Name: "Kim", Email: "kim@campus.test", Role: "student", TelegramID: &tg})
	require.NoError(t, err)

	found, err := env.users.GetByTelegramID(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, Actor{UserID: user.ID, Role: model.RoleStudent}, ActorFor(found))

	_, err = env.users.Create(ctx, env.admin, UserInput{Name: "Kim 2", Role: "student", TelegramID: &tg})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.FieldErrors, "telegram_id")

	_, err = env.users.Create(ctx, env.admin, UserInput{Name: "X", Role: "janitor"})
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.FieldErrors, "role")

	_, err = env.users.Create(ctx, env.lecturer, UserInput{Name: "Y", Role: "student"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.users.GetByTelegramID(ctx, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.users.GetByID(ctx, 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
