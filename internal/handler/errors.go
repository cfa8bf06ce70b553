package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"employee-manager/internal/common"
)

// statusFor maps the common error kinds to HTTP status codes. Unknown errors
// are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrConflict), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// answered with fallback so no detail leaks to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	_ = c.Error(err)

	switch status {
	case http.StatusInternalServerError:
		logger.Error(fallback, zap.Error(err))
		c.JSON(status, gin.H{"error": fallback})
	case http.StatusServiceUnavailable:
		logger.Warn(fallback, zap.Error(err))
		c.JSON(status, gin.H{"error": "Spreadsheet service unavailable"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
