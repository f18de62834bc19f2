package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/securemedai/portal/infrastructure/service/logger"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDMiddleware ensures every request/response carries a correlation ID
// and makes it available to log entries written while serving the request.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" || len(cid) > 128 {
			cid = uuid.NewString()
		}
		// forwarded to the hospital API by the gateway
		r.Header.Set(CorrelationIDHeader, cid)
		w.Header().Set(CorrelationIDHeader, cid)

		ctx := logger.ContextWithCorrelationID(r.Context(), cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
