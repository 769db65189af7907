package log

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

// HTTPMiddleware logs one line per request to logger. Server errors log at
// error level, everything else at debug.
func HTTPMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = GetSugaredLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)

			fields := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"query", req.URL.RawQuery,
				"status", m.Code,
				"duration_ms", m.Duration.Milliseconds(),
				"size", m.Written,
				"remote_addr", req.RemoteAddr,
				"user_agent", req.UserAgent(),
			}
			if m.Code >= http.StatusInternalServerError {
				logger.Errorw("http request", fields...)
			} else {
				logger.Debugw("http request", fields...)
			}
		})
	}
}
