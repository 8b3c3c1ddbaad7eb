package api

import (
	"errors"
	"net/http"
	"strconv"

	"GamePriceSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// statusFor 业务错误 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrGameNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownRetailer):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := statusFor(err)
	entry := logger.WithError(err).WithField("path", c.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error(op + " failed")
	} else {
		entry.Warn(op + " failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// idParam 路径中的正整数ID，非法时已写入 400
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
