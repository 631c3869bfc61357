package httpapi

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
)

type reservationRequest struct {
	LabID     int64  `json:"lab_id"`
	Day       string `json:"day"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Purpose   string `json:"purpose"`
}

func (a *api) submitReservation(c *gin.Context) {
	var req reservationRequest
	if !bindJSON(c, &req) {
		return
	}
	date, ok := parseDate(c, "date", req.Date)
	if !ok {
		return
	}
	res, err := a.svc.Reservations.Submit(c.Request.Context(), actor(c), service.SubmitReservationInput{
		LabID:     req.LabID,
		Day:       req.Day,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Purpose:   req.Purpose,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *api) listMyReservations(c *gin.Context) {
	list, err := a.svc.Reservations.ListMine(c.Request.Context(), actor(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) listReservationsByStatus(c *gin.Context) {
	status := model.ReservationStatus(c.DefaultQuery("status", string(model.ReservationStatusPending)))
	list, err := a.svc.Reservations.ListByStatus(c.Request.Context(), actor(c), status)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) getReservation(c *gin.Context) {
	a.reservationAction(c, http.StatusOK, a.svc.Reservations.Get)
}

func (a *api) approveReservation(c *gin.Context) {
	a.reservationAction(c, http.StatusOK, a.svc.Reservations.Approve)
}

func (a *api) rejectReservation(c *gin.Context) {
	a.reservationAction(c, http.StatusOK, a.svc.Reservations.Reject)
}

func (a *api) cancelReservation(c *gin.Context) {
	a.reservationAction(c, http.StatusOK, a.svc.Reservations.Cancel)
}

func (a *api) reservationAction(c *gin.Context, status int, fn func(context.Context, service.Actor, int64) (*model.Reservation, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := fn(c.Request.Context(), actor(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(status, res)
}

func (a *api) deleteReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Reservations.Delete(c.Request.Context(), actor(c), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
