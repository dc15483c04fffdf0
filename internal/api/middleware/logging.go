package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/metrics"
)

// RequestLogger returns a chi middleware that logs each request's method,
// path, status, and duration through the zerolog logger the rest of the
// process uses, tagging it with chi's request id when present.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			metrics.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(ww.Status()), duration.Seconds())

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Msg("http request")
		})
	}
}
