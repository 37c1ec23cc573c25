package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"project-hub-backend/pkg/metrics"
)

// Logger logs every request with zap and records its latency.
func Logger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			holder := &requestUser{id: "anonymous"}
			r = r.WithContext(context.WithValue(r.Context(), requestUserKey, holder))

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), duration)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("user", holder.id),
				zap.String("ip", getClientIP(r)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				logger.Error("Request failed", fields...)
			case status >= 400:
				logger.Warn("Request rejected", fields...)
			default:
				logger.Info("Request handled", fields...)
			}
		})
	}
}

// requestUser lets AuthMiddleware report the authenticated user back to the
// access log, which only sees the outer request.
type requestUser struct {
	id string
}

const requestUserKey ContextKey = "request_user"

func setRequestUser(ctx context.Context, id string) {
	if holder, ok := ctx.Value(requestUserKey).(*requestUser); ok {
		holder.id = id
	}
}

// routePattern is the matched chi pattern, so metric labels stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
