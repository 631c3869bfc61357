package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *api) listNotifications(c *gin.Context) {
	unread := c.Query("unread") == "true"
	list, err := a.svc.Notifications.List(c.Request.Context(), actor(c), unread)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) markNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := a.svc.Notifications.MarkRead(c.Request.Context(), actor(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
