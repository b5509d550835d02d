package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	learnerIDHeader = "X-Learner-ID"
	learnerIDKey    = "learner_id"
)

// LearnerMiddleware reads the learner identity set by the upstream gateway
func LearnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		learnerID := strings.TrimSpace(c.GetHeader(learnerIDHeader))
		if learnerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Learner not authenticated",
				Details: learnerIDHeader + " header is required",
			})
			return
		}
		c.Set(learnerIDKey, learnerID)
		c.Next()
	}
}

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := c.Param(param)
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

func ParseUintIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		details := "ID must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: details,
		})
		return 0
	}
	return uint(id)
}
