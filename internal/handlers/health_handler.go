package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"

	"github.com/gin-gonic/gin"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) qonto.HealthCheckResult
}

type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 10 * time.Second}
}

// Check calls Qonto. Missing credentials report misconfigured instead of failing startup.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := h.checker.HealthCheck(ctx)

	body := gin.H{
		"authMode":  result.AuthMode,
		"timestamp": result.Timestamp,
	}
	switch {
	case result.Healthy:
		body["status"] = "healthy"
		body["bankAccountsCount"] = result.BankAccountsCount
		c.JSON(http.StatusOK, body)
		return
	case errors.Is(result.Err, apperrors.ErrConfiguration):
		body["status"] = "misconfigured"
	default:
		body["status"] = "unhealthy"
	}
	body["error"] = result.Error
	c.JSON(http.StatusServiceUnavailable, body)
}
