package middleware

import (
	"log/slog"
	"net/http"

	"github.com/jasonwang1/registercenter/pkg/logger"
)

// Stack composes the RPC server's standard middleware chain, applied
// outermost to innermost: security headers, panic recovery, then request
// logging (which itself assigns and attaches the request ID — see
// pkg/logger.LoggingMiddleware). Adapted from the teacher's
// BuildWebhookMiddlewareStack, dropping the rate-limit/auth/CORS/
// compression stages it only ever stubbed out as no-ops — no
// SPEC_FULL.md component calls for any of them on the internal RPC
// surface.
func Stack(log *slog.Logger) func(http.Handler) http.Handler {
	securityHeaders := NewSecurityHeadersMiddleware(nil)
	return func(next http.Handler) http.Handler {
		handler := logger.LoggingMiddleware(log)(next)
		handler = recoverPanics(log, handler)
		handler = securityHeaders.Handler(handler)
		return handler
	}
}

func recoverPanics(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
