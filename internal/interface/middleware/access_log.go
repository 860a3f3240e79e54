package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/internal/metrics"
)

// AccessLog writes one logrus entry per request and records it in m.
// logger may be nil to only record metrics.
func AccessLog(logger *logrus.Logger, m metrics.Recorder) gin.HandlerFunc {
	if m == nil {
		m = metrics.Nop{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		route := normalizePath(c)

		m.RecordHTTPRequest(c.Request.Method, route, status, latency)
		if logger == nil {
			return
		}
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"ip":         ipFromCtx(c),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}

// normalizePath keeps metric labels bounded: the route pattern when matched, else a fixed label.
func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return "unmatched"
}
