package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/Freeeeeet/labportal/internal/testfixtures"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	clock *testfixtures.Clock
	store *testfixtures.MemStore
	opts  Options

	reservations  *ReservationService
	schedules     *ScheduleService
	labs          *LabService
	users         *UserService
	notifications *NotificationService

	admin     Actor
	student   Actor
	lecturer  Actor
	adminUser *model.User
}

func newTestEnv(t *testing.T, configure ...func(*Options)) *testEnv {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	store := testfixtures.NewMemStore(clock.NowFunc())
	opts := Options{
		Location:                time.UTC,
		Now:                     clock.NowFunc(),
		BaseURL:                 "https://labs.campus.test",
		ReleaseScheduleOnCancel: true,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	logger := zaptest.NewLogger(t)
	env := &testEnv{
		clock:         clock,
		store:         store,
		opts:          opts,
		reservations:  NewReservationService(store, opts, logger),
		schedules:     NewScheduleService(store, opts, logger),
		labs:          NewLabService(store, logger),
		users:         NewUserService(store, logger),
		notifications: NewNotificationService(store, opts, logger),
	}

	env.adminUser = testfixtures.MustUser(t, store, "Ada Admin", model.RoleAdmin)
	env.admin = ActorFor(env.adminUser)
	env.student = ActorFor(testfixtures.MustUser(t, store, "Sam Student", model.RoleStudent))
	env.lecturer = ActorFor(testfixtures.MustUser(t, store, "Lee Lecturer", model.RoleLecturer))
	return env
}

func (e *testEnv) lab(t *testing.T, name string) *model.Lab {
	t.Helper()
	return testfixtures.MustLab(t, e.store, name)
}

func (e *testEnv) submit(t *testing.T, actor Actor, labID int64, day, start, end string) *model.Reservation {
	t.Helper()
	res, err := e.reservations.Submit(context.Background(), actor, SubmitReservationInput{
		LabID:     labID,
		Day:       day,
		StartTime: start,
		EndTime:   end,
		Purpose:   "Project work",
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) schedulesOf(t *testing.T, labID int64) []*model.Schedule {
	t.Helper()
	list, err := e.store.Schedules().List(context.Background(), model.ScheduleFilter{LabID: labID})
	require.NoError(t, err)
	return list
}

func (e *testEnv) outbox(t *testing.T) []*model.OutboxMessage {
	t.Helper()
	list, err := e.store.Outbox().ClaimPending(context.Background(), 0)
	require.NoError(t, err)
	return list
}

// requireNoDoubleBooking падает, если два занятия лаборатории пересекаются в одну дату
func requireNoDoubleBooking(t *testing.T, list []*model.Schedule) {
	t.Helper()
	for i, a := range list {
		for _, b := range list[i+1:] {
			if !a.Date.Equal(b.Date) || a.LabID != b.LabID {
				continue
			}
			require.False(t, scheduling.Overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime),
				"schedules %d and %d overlap on %s", a.ID, b.ID, a.Date.Format(time.DateOnly))
		}
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }
