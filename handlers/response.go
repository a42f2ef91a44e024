package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/utils"
)

// Response is the body of every API response. Errors never carry data.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: true, Message: message})
}

// respondError maps err onto its HTTP status. The error is attached to the
// gin context so the error logger middleware records the details.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(err), Response{Success: false, Message: utils.PublicMessage(err)})
}

func StatusFor(err error) int {
	switch utils.ErrorKind(err) {
	case utils.KindValidation, utils.KindInvalidArgument:
		return http.StatusBadRequest
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindInsufficientStock, utils.KindPartialApply:
		return http.StatusConflict
	case utils.KindTimeout:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func paramId(c *gin.Context) (int, error) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q must be a positive integer", utils.ErrInvalidArgument, raw)
	}
	return id, nil
}

func bindJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", utils.ErrValidation, err)
	}
	return nil
}
