package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ChiMiddleware logs every http request once it is served. Handlers find a logger tagged with the
// request id in r.Context(). Server errors are logged at error level, client errors at warn level.
func ChiMiddleware(ctx context.Context) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqCtx := With(CopyFromContext(ctx, r.Context()), "req-id", middleware.GetReqID(r.Context()))
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(reqCtx))

			//nolint:contextcheck
			fromContext(reqCtx).Log(reqCtx, statusLevel(ww.Status()), "http req",
				"method", r.Method,
				"uri", r.RequestURI,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"ua", r.Header.Get("User-Agent"),
				"d", time.Since(start))
		})
	}
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
