package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name, "must be a positive integer")
		return 0, false
	}
	return id, true
}

func pathGroupID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("group_id"))
	if err != nil {
		badRequest(c, "group_id", "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseDate читает необязательную дату YYYY-MM-DD, пустая строка даёт nil
func parseDate(c *gin.Context, field, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		badRequest(c, field, "must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "body", err.Error())
		return false
	}
	return true
}
