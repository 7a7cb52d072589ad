package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/platform/ctxutil"
	"github.com/devenwen/callme-gate/internal/platform/logger"
)

// RequestLogger logs one structured line per request, at a level keyed off
// the response status, the way the teacher stack logs HTTP access lines.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil && td.TraceID != "" {
			fields = append(fields, "trace_id", td.TraceID)
		}
		if reqID := c.Writer.Header().Get("X-Request-Id"); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if workerID := c.Writer.Header().Get("X-Worker-Id"); workerID != "" {
			fields = append(fields, "worker_id", workerID)
		}

		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}
