package middleware

import (
	"net/http"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the flusher of event streams.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			sessionID, _ := outbound.SessionIDFromContext(r.Context())
			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"session_id":  outbound.ShortID(sessionID),
			}
			if rec.status >= http.StatusInternalServerError {
				log.Warn(r.Context(), "HTTP request", fields)
				return
			}
			log.Info(r.Context(), "HTTP request", fields)
		})
	}
}
