package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/wallet-risk-engine/internal/logger"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request and puts a request-scoped
// logger into the request context.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.With().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("ip", c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		event := reqLog.Info()
		switch {
		case status >= 500:
			event = reqLog.Error()
		case status >= 400:
			event = reqLog.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Int("status", status).Dur("latency", time.Since(start)).Msg("Request handled")
	}
}
