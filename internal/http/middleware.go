package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// requestLogger attaches a request-scoped logger to the context and emits one
// line per request with status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		l := logger.L().With(logger.RequestID(reqID))
		ctx := logger.ToContext(r.Context(), l)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		l.Info("http request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}

// clientIP is what handlers record against logins and token requests.
// middleware.RealIP has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
