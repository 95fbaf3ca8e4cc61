package http

import (
	"errors"
	"net/http"

	"project_broadcast/internal/entities"
	"project_broadcast/internal/usecases"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, entities.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrSessionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, entities.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrUnauthorized), errors.Is(err, usecases.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, usecases.ErrUsernameTaken), errors.Is(err, entities.ErrDeviceTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Internal errors are logged by the
// gin error list and hidden from the caller.
func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
