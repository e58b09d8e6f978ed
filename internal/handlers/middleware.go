package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"
	actorHeader     = "X-User-ID"
)

// RequestLogger logs one line per request and puts a request-scoped logger in the context
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		reqLog := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		event := reqLog.Info()
		if c.Writer.Status() >= 500 {
			event = reqLog.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// actor identifies who performed a manual action. Authentication lives
// upstream; we only trust the forwarded header.
func actor(c *gin.Context) string {
	if id := c.GetHeader(actorHeader); id != "" {
		return id
	}
	return "anonymous"
}

func requestLog(c *gin.Context) zerolog.Logger {
	return *zerolog.Ctx(c.Request.Context())
}
