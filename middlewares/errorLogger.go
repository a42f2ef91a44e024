package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
)

// ErrorLogger logs only requests that attached errors to the gin context.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		for _, ginErr := range c.Errors {
			entry := logger.WithFields(logrus.Fields{
				"method":         c.Request.Method,
				"path":           c.Request.URL.Path,
				"status":         c.Writer.Status(),
				"correlation_id": cid,
				"kind":           utils.ErrorKind(ginErr.Err),
			})
			if c.Writer.Status() >= 500 {
				entry.Error(ginErr.Error())
			} else {
				entry.Warn(ginErr.Error())
			}
		}
	}
}
