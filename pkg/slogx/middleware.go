package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passage/pkg/idx"
)

// quietPaths are polled by orchestrators and scrapers; they log at debug.
var quietPaths = map[string]bool{
	"/livez":   true,
	"/readyz":  true,
	"/metrics": true,
}

// HTTPMiddleware puts a request-scoped logger on the context and logs one
// line per request. A caller-supplied X-Request-ID is kept only if it is a
// ULID, so arbitrary header text never reaches the logs.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqID, err := idx.Parse(r.Header.Get("X-Request-ID"))
			if err != nil {
				reqID = idx.New()
			}
			rw.Header().Set("X-Request-ID", reqID.String())

			logger := base.With(
				"req_id", reqID.String(),
				"method", r.Method,
				"path", r.URL.Path,
			)
			r = r.WithContext(WithContext(r.Context(), logger))

			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
