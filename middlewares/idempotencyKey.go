package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/utils"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyKey passes the client's Idempotency-Key header to the services.
// Create operations replay the stored result for a key they already saw.
func IdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(IdempotencyKeyHeader); key != "" {
			c.Request = c.Request.WithContext(utils.SetIdempotencyKeyInContext(c.Request.Context(), key))
		}
		c.Next()
	}
}
