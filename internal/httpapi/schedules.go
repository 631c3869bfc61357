package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/labportal/internal/importer"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
)

type scheduleRequest struct {
	LabID        int64   `json:"lab_id"`
	Day          string  `json:"day"`
	ScheduleDate string  `json:"schedule_date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	CourseName   *string `json:"course_name"`
	LecturerID   *int64  `json:"lecturer_id"`
	LecturerName *string `json:"lecturer_name"`
	RepeatWeeks  int     `json:"repeat_weeks"`
}

func (a *api) bindSchedule(c *gin.Context) (service.ScheduleInput, bool) {
	var req scheduleRequest
	if !bindJSON(c, &req) {
		return service.ScheduleInput{}, false
	}
	date, ok := parseDate(c, "schedule_date", req.ScheduleDate)
	if !ok {
		return service.ScheduleInput{}, false
	}
	return service.ScheduleInput{
		LabID:        req.LabID,
		Day:          req.Day,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		CourseName:   req.CourseName,
		LecturerID:   req.LecturerID,
		LecturerName: req.LecturerName,
		RepeatWeeks:  req.RepeatWeeks,
	}, true
}

func (a *api) createSchedule(c *gin.Context) {
	in, ok := a.bindSchedule(c)
	if !ok {
		return
	}
	sch, err := a.svc.Schedules.CreateOne(c.Request.Context(), actor(c), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sch)
}

func (a *api) createRecurringSchedule(c *gin.Context) {
	in, ok := a.bindSchedule(c)
	if !ok {
		return
	}
	list, err := a.svc.Schedules.CreateRecurring(c.Request.Context(), actor(c), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (a *api) getSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sch, err := a.svc.Schedules.GetByID(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (a *api) updateSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	in, ok := a.bindSchedule(c)
	if !ok {
		return
	}
	sch, err := a.svc.Schedules.UpdateOne(c.Request.Context(), actor(c), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (a *api) updateScheduleGroup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	in, ok := a.bindSchedule(c)
	if !ok {
		return
	}
	list, err := a.svc.Schedules.UpdateGroup(c.Request.Context(), actor(c), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) deleteSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Schedules.DeleteOne(c.Request.Context(), actor(c), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) listScheduleGroup(c *gin.Context) {
	groupID, ok := pathGroupID(c)
	if !ok {
		return
	}
	list, err := a.svc.Schedules.ListGroup(c.Request.Context(), groupID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) deleteScheduleGroup(c *gin.Context) {
	groupID, ok := pathGroupID(c)
	if !ok {
		return
	}
	deleted, err := a.svc.Schedules.DeleteGroup(c.Request.Context(), actor(c), groupID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// importSchedules принимает xlsx в multipart-поле "file". Ошибки строк
// возвращаются в теле, сам запрос успешен.
func (a *api) importSchedules(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "xlsx upload is required")
		return
	}
	if header.Size > a.cfg.MaxUploadBytes {
		badRequest(c, "file", "too large")
		return
	}
	f, err := header.Open()
	if err != nil {
		a.fail(c, err)
		return
	}
	defer f.Close()

	rows, err := importer.ReadWorkbook(f)
	if err != nil {
		if errors.Is(err, importer.ErrMissingColumn) {
			badRequest(c, "file", err.Error())
			return
		}
		badRequest(c, "file", "unreadable workbook")
		return
	}
	result, err := a.svc.Schedules.Import(c.Request.Context(), actor(c), rows)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
