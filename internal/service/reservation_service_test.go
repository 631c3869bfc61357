package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/Freeeeeet/labportal/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_OverlappingReservationIsRefused(t *testing.T) {
	env := newTestEnv(t)
	labA := env.lab(t, "A")

	first := env.submit(t, env.student, labA.ID, "Monday", "10:00", "12:00")
	assert.Equal(t, model.ReservationStatusPending, first.Status)
	assert.Equal(t, date(2025, time.September, 8), first.Date)
	assert.Equal(t, time.Monday, first.Weekday)

	_, err := env.reservations.Submit(context.Background(), env.lecturer, SubmitReservationInput{
		LabID:     labA.ID,
		Day:       "Monday",
		StartTime: "11:00",
		EndTime:   "13:00",
		Purpose:   "Lab session",
	})
	require.ErrorIs(t, err, ErrScheduleConflict)

	var cErr *scheduling.ConflictError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, first.ID, cErr.With.ID)
	assert.Equal(t, date(2025, time.September, 8), cErr.Date)
}

func TestSubmit_BackToBackIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	lab := env.lab(t, "A")

	env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
	env.submit(t, env.lecturer, lab.ID, "Monday", "10:00", "11:00")

	mine, err := env.reservations.ListMine(context.Background(), env.lecturer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "A", mine[0].Lab.Name)
}

func TestSubmit_OtherDatesAndCancelledDoNotConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")

	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
	env.submit(t, env.student, lab.ID, "Tuesday", "09:00", "10:00")

	_, err := env.reservations.Cancel(ctx, env.student, res.ID)
	require.NoError(t, err)

	env.submit(t, env.lecturer, lab.ID, "Monday", "09:00", "10:00")
}

func TestSubmit_Validation(t *testing.T) {
	env := newTestEnv(t)
	lab := env.lab(t, "A")

	tests := []struct {
		name  string
		in    SubmitReservationInput
		field string
		is    error
	}{
		{
			name:  "missing purpose",
			in:    SubmitReservationInput{LabID: lab.ID, Day: "Monday", StartTime: "09:00", EndTime: "10:00"},
			field: "purpose",
		},
		{
			name:  "unknown weekday",
			in:    SubmitReservationInput{LabID: lab.ID, Day: "Funday", StartTime: "09:00", EndTime: "10:00", Purpose: "x"},
			field: "day",
			is:    ErrInvalidWeekday,
		},
		{
			name:  "sunday",
			in:    SubmitReservationInput{LabID: lab.ID, Day: "Sunday", StartTime: "09:00", EndTime: "10:00", Purpose: "x"},
			field: "day",
		},
		{
			name:  "end before start",
			in:    SubmitReservationInput{LabID: lab.ID, Day: "Monday", StartTime: "11:00", EndTime: "10:00", Purpose: "x"},
			field: "end_time",
		},
		{
			name:  "malformed time",
			in:    SubmitReservationInput{LabID: lab.ID, Day: "Monday", StartTime: "9am", EndTime: "10:00", Purpose: "x"},
			field: "start_time",
		},
		{
			name:  "no day and no date",
			in:    SubmitReservationInput{LabID: lab.ID, StartTime: "09:00", EndTime: "10:00", Purpose: "x"},
			field: "day",
		},
		{
			name:  "missing lab",
			in:    SubmitReservationInput{Day: "Monday", StartTime: "09:00", EndTime: "10:00", Purpose: "x"},
			field: "lab_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reservations.Submit(context.Background(), env.student, tt.in)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Contains(t, vErr.FieldErrors, tt.field)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestSubmit_ExplicitDateDerivesWeekday(t *testing.T) {
	env := newTestEnv(t)
	lab := env.lab(t, "A")

	res, err := env.reservations.Submit(context.Background(), env.student, SubmitReservationInput{
		LabID:     lab.ID,
		Date:      ptr(date(2025, time.September, 10)),
		StartTime: "09:00",
		EndTime:   "10:00",
		Purpose:   "Thesis",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, res.Weekday)
	assert.Equal(t, date(2025, time.September, 10), res.Date)
}

func TestSubmit_LabChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Submit(ctx, env.student, SubmitReservationInput{
		LabID: 999, Day: "Monday", StartTime: "09:00", EndTime: "10:00", Purpose: "x",
	})
	assert.ErrorIs(t, err, ErrLabNotFound)

	lab, err := env.labs.Create(ctx, env.admin, LabInput{Name: "Closed", Status: "maintenance"})
	require.NoError(t, err)
	_, err = env.reservations.Submit(ctx, env.student, SubmitReservationInput{
		LabID: lab.ID, Day: "Monday", StartTime: "09:00", EndTime: "10:00", Purpose: "x",
	})
	assert.ErrorIs(t, err, ErrLabUnavailable)
}

func TestSubmit_NotifiesAllAdmins(t *testing.T) {
	env := newTestEnv(t)
	second := testfixtures.MustUser(t, env.store, "Bo Admin", model.RoleAdmin)
	lab := env.lab(t, "A")

	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")

	msgs := env.outbox(t)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, model.NotificationReservationSubmitted, msg.Kind)
	assert.ElementsMatch(t, []int64{env.adminUser.ID, second.ID}, msg.Recipients)
	assert.Equal(t, res.ID, msg.Payload.ReservationID)
	assert.Equal(t, "A", msg.Payload.LabName)
	assert.Equal(t, "Sam Student", msg.Payload.RequesterName)
	assert.Equal(t, "Project work", msg.Payload.Purpose)
	assert.Equal(t, "https://labs.campus.test/reservations/"+strconv.FormatInt(res.ID, 10), msg.Payload.URL)
}

func TestApprove_MaterializesSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "B")
	res := env.submit(t, env.student, lab.ID, "Tuesday", "09:00", "10:00")

	approved, err := env.reservations.Approve(ctx, env.admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusApproved, approved.Status)

	list := env.schedulesOf(t, lab.ID)
	require.Len(t, list, 1)
	sch := list[0]
	assert.Equal(t, model.ScheduleTypeReservation, sch.Type)
	require.NotNil(t, sch.ReservationID)
	assert.Equal(t, res.ID, *sch.ReservationID)
	require.NotNil(t, sch.CourseName)
	assert.Equal(t, "Project work", *sch.CourseName)
	assert.Equal(t, date(2025, time.September, 2), sch.Date)
	assert.Nil(t, sch.GroupID)

	msgs := env.outbox(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.NotificationReservationStatusChanged, msgs[1].Kind)
	assert.Equal(t, []int64{env.student.UserID}, msgs[1].Recipients)
	assert.Equal(t, model.ReservationStatusApproved, msgs[1].Payload.Status)
}

func TestApprove_ConflictLeavesReservationPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	labB := env.lab(t, "B")

	res := env.submit(t, env.student, labB.ID, "Tuesday", "09:00", "10:00")
	_, err := env.schedules.CreateOne(ctx, env.admin, ScheduleInput{
		LabID: labB.ID, Day: "Tuesday", StartTime: "09:30", EndTime: "10:30", CourseName: ptr("Networks"),
	})
	require.NoError(t, err)

	_, err = env.reservations.Approve(ctx, env.admin, res.ID)
	require.ErrorIs(t, err, ErrScheduleConflict)

	stored, err := env.reservations.Get(ctx, env.admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusPending, stored.Status)

	list := env.schedulesOf(t, labB.ID)
	require.Len(t, list, 1)
	assert.Equal(t, model.ScheduleTypeLecture, list[0].Type)
	assert.Len(t, env.outbox(t), 1, "only the submission event is queued")
}

func TestApprove_StorageFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "B")
	res := env.submit(t, env.student, lab.ID, "Tuesday", "09:00", "10:00")

	env.store.SetFaults(testfixtures.Faults{ScheduleCreate: errors.New("disk full")})
	_, err := env.reservations.Approve(ctx, env.admin, res.ID)
	require.Error(t, err)

	env.store.SetFaults(testfixtures.Faults{})
	stored, err := env.store.Reservations().GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusPending, stored.Status)
	assert.Empty(t, env.schedulesOf(t, lab.ID))

	_, err = env.reservations.Approve(ctx, env.admin, res.ID)
	require.NoError(t, err)
}

func TestApproveReject_Transitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")

	_, err := env.reservations.Approve(ctx, env.admin, 12345)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")

	_, err = env.reservations.Approve(ctx, env.student, res.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	rejected, err := env.reservations.Reject(ctx, env.admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusRejected, rejected.Status)

	_, err = env.reservations.Approve(ctx, env.admin, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.reservations.Reject(ctx, env.admin, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.reservations.Cancel(ctx, env.student, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Empty(t, env.schedulesOf(t, lab.ID))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending by owner, twice", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.submit(t, env.student, env.lab(t, "A").ID, "Monday", "09:00", "10:00")

		cancelled, err := env.reservations.Cancel(ctx, env.student, res.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationStatusCancelled, cancelled.Status)

		_, err = env.reservations.Cancel(ctx, env.student, res.ID)
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
	})

	t.Run("someone else's reservation", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.submit(t, env.student, env.lab(t, "A").ID, "Monday", "09:00", "10:00")

		_, err := env.reservations.Cancel(ctx, env.lecturer, res.ID)
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = env.reservations.Get(ctx, env.lecturer, res.ID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("approved releases the schedule", func(t *testing.T) {
		env := newTestEnv(t)
		lab := env.lab(t, "A")
		res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
		_, err := env.reservations.Approve(ctx, env.admin, res.ID)
		require.NoError(t, err)
		require.Len(t, env.schedulesOf(t, lab.ID), 1)

		_, err = env.reservations.Cancel(ctx, env.student, res.ID)
		require.NoError(t, err)
		assert.Empty(t, env.schedulesOf(t, lab.ID))
	})

	t.Run("approved keeps the schedule when release is off", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) { o.ReleaseScheduleOnCancel = false })
		lab := env.lab(t, "A")
		res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
		_, err := env.reservations.Approve(ctx, env.admin, res.ID)
		require.NoError(t, err)

		_, err = env.reservations.Cancel(ctx, env.admin, res.ID)
		require.NoError(t, err)
		assert.Len(t, env.schedulesOf(t, lab.ID), 1)
	})
}

func TestDelete_CascadesToSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")
	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
	_, err := env.reservations.Approve(ctx, env.admin, res.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, env.reservations.Delete(ctx, env.student, res.ID), ErrUnauthorized)
	require.NoError(t, env.reservations.Delete(ctx, env.admin, res.ID))
	assert.Empty(t, env.schedulesOf(t, lab.ID))
	assert.ErrorIs(t, env.reservations.Delete(ctx, env.admin, res.ID), ErrReservationNotFound)
}

func TestListByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")
	first := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")
	second := env.submit(t, env.student, lab.ID, "Monday", "10:00", "11:00")
	_, err := env.reservations.Reject(ctx, env.admin, first.ID)
	require.NoError(t, err)

	pending, err := env.reservations.ListByStatus(ctx, env.admin, model.ReservationStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, "Sam Student", pending[0].Requester.Name)

	_, err = env.reservations.ListByStatus(ctx, env.student, model.ReservationStatusPending)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.reservations.ListByStatus(ctx, env.admin, "archived")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestApprove_ConcurrentApprovalsOfOneSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")

	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.reservations.Approve(ctx, env.admin, res.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Len(t, env.schedulesOf(t, lab.ID), 1)
}

func TestApproveAndCreateRace_AtMostOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lab := env.lab(t, "A")
	res := env.submit(t, env.student, lab.ID, "Monday", "09:00", "10:00")

	var (
		wg         sync.WaitGroup
		approveErr error
		createErrs = make([]error, 4)
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, approveErr = env.reservations.Approve(ctx, env.admin, res.ID)
	}()
	for i := range createErrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, createErrs[i] = env.schedules.CreateOne(ctx, env.admin, ScheduleInput{
				LabID: lab.ID, Day: "Monday", StartTime: "09:30", EndTime: "10:30",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range append([]error{approveErr}, createErrs...) {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrScheduleConflict)
	}
	assert.Equal(t, 1, wins)

	list := env.schedulesOf(t, lab.ID)
	assert.Len(t, list, 1)
	requireNoDoubleBooking(t, list)
}
