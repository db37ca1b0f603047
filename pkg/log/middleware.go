package log

import (
	"net/http"
	"runtime/debug"
	"time"
)

// responseWriter is a minimal wrapper for http.ResponseWriter that allows the
// written HTTP status code to be captured for logging.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// LoggingMiddleware writes one access line per request and turns panics in
// handlers into 500 responses.
func LoggingMiddleware(logger JsonLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			defer func() {
				if err := recover(); err != nil {
					wrapped.WriteHeader(http.StatusInternalServerError)
					logger.Log(map[string]interface{}{
						"type":     "error",
						"category": LogCategory_InvalidCodeState.String(),
						"err":      err,
						"trace":    string(debug.Stack()),
					})
				}
			}()

			next.ServeHTTP(wrapped, r)
			logger.Log(map[string]interface{}{
				"type":        "info",
				"status":      wrapped.status,
				"method":      r.Method,
				"path":        r.URL.EscapedPath(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}

		return http.HandlerFunc(fn)
	}
}
