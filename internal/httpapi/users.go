package httpapi

import (
	"net/http"

	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
)

func (a *api) createUser(c *gin.Context) {
	var in service.UserInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := a.svc.Users.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
