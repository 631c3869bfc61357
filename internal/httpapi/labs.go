package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/labportal/internal/export"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
)

func (a *api) listLabs(c *gin.Context) {
	labs, err := a.svc.Labs.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, labs)
}

func (a *api) getLab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	lab, err := a.svc.Labs.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lab)
}

func (a *api) createLab(c *gin.Context) {
	var in service.LabInput
	if !bindJSON(c, &in) {
		return
	}
	lab, err := a.svc.Labs.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, lab)
}

func (a *api) updateLab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in service.LabInput
	if !bindJSON(c, &in) {
		return
	}
	lab, err := a.svc.Labs.Update(c.Request.Context(), actor(c), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lab)
}

func (a *api) deleteLab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Labs.Delete(c.Request.Context(), actor(c), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listLabSchedules принимает необязательные from/to, обе границы включительно
func (a *api) listLabSchedules(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	from, ok := parseDate(c, "from", c.Query("from"))
	if !ok {
		return
	}
	to, ok := parseDate(c, "to", c.Query("to"))
	if !ok {
		return
	}
	list, err := a.svc.Schedules.ListLabRange(c.Request.Context(), id, deref(from), deref(to))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) labWeekImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := parseDate(c, "date", c.Query("date"))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	lab, err := a.svc.Labs.Get(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	monday := a.svc.Schedules.WeekOf(deref(date))
	list, err := a.svc.Schedules.ListLabRange(ctx, id, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		a.fail(c, err)
		return
	}
	png, err := export.RenderLabWeek(export.WeekView{
		Lab:       lab,
		WeekStart: monday,
		Schedules: list,
		Now:       a.cfg.Now(),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
