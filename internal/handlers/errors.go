package handler

import (
	"errors"
	"net/http"

	"qonto-reconciliation-backend/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// statusFor maps the error taxonomy to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrConfiguration),
		errors.Is(err, apperrors.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrAuth):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError is the one place errors become HTTP responses
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("path", c.FullPath()).
		Msg("request failed")

	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
