package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/scheduling"
)

func describeSlot(r *model.Reservation) string {
	return fmt.Sprintf("%s %s %s-%s", r.Weekday, r.Date.Format(time.DateOnly), r.StartTime, r.EndTime)
}

func submittedEvent(opts Options, r *model.Reservation, lab *model.Lab, requester *model.User, admins []int64) *model.OutboxMessage {
	return &model.OutboxMessage{
		Kind:       model.NotificationReservationSubmitted,
		Recipients: admins,
		Payload: model.NotificationPayload{
			Kind:          model.NotificationReservationSubmitted,
			Title:         "New lab reservation request",
			Message:       fmt.Sprintf("%s requested %s on %s: %s", requester.Name, lab.Name, describeSlot(r), r.Purpose),
			URL:           opts.reservationLink(r.ID),
			ReservationID: r.ID,
			LabName:       lab.Name,
			RequesterName: requester.Name,
			Purpose:       r.Purpose,
			Status:        r.Status,
		},
	}
}

func statusChangedEvent(opts Options, r *model.Reservation, lab *model.Lab, requester *model.User) *model.OutboxMessage {
	return &model.OutboxMessage{
		Kind:       model.NotificationReservationStatusChanged,
		Recipients: []int64{r.RequesterID},
		Payload: model.NotificationPayload{
			Kind:          model.NotificationReservationStatusChanged,
			Title:         fmt.Sprintf("Reservation %s", r.Status),
			Message:       fmt.Sprintf("Your reservation of %s on %s was %s", lab.Name, describeSlot(r), r.Status),
			URL:           opts.reservationLink(r.ID),
			ReservationID: r.ID,
			LabName:       lab.Name,
			RequesterName: requester.Name,
			Purpose:       r.Purpose,
			Status:        r.Status,
		},
	}
}

// scheduleChecker проверяет пересечения с занятиями внутри транзакции
func scheduleChecker(tx repository.Tx) *scheduling.Checker {
	return scheduleCheckerExcluding(tx, nil)
}

// scheduleCheckerExcluding не видит занятия из skip: при переносе серии
// её участники не конфликтуют друг с другом
func scheduleCheckerExcluding(tx repository.Tx, skip map[int64]struct{}) *scheduling.Checker {
	return scheduling.NewChecker(scheduling.SourceFunc(
		func(ctx context.Context, labID int64, date time.Time) ([]scheduling.Booking, error) {
			list, err := tx.Schedules().On(ctx, labID, date)
			if err != nil {
				return nil, err
			}
			bookings := make([]scheduling.Booking, 0, len(list))
			for _, s := range list {
				if _, ok := skip[s.ID]; ok {
					continue
				}
				bookings = append(bookings, s.Booking())
			}
			return bookings, nil
		}))
}

// reservationChecker проверяет пересечения с заявками pending/approved
func reservationChecker(tx repository.Tx) *scheduling.Checker {
	return scheduling.NewChecker(scheduling.SourceFunc(
		func(ctx context.Context, labID int64, date time.Time) ([]scheduling.Booking, error) {
			list, err := tx.Reservations().ActiveOn(ctx, labID, date)
			if err != nil {
				return nil, err
			}
			bookings := make([]scheduling.Booking, 0, len(list))
			for _, r := range list {
				bookings = append(bookings, r.Booking())
			}
			return bookings, nil
		}))
}

// lockDates берёт блокировки слотов в порядке возрастания дат
func lockDates(ctx context.Context, tx repository.Tx, labID int64, dates ...time.Time) error {
	sorted := slices.Clone(dates)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	for _, d := range sorted {
		if err := tx.LockSlot(ctx, labID, d); err != nil {
			return err
		}
	}
	return nil
}
