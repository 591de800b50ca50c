package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns each request a correlation id, honoring one supplied by
// the caller, seeds it into the log context and echoes it on the response.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
