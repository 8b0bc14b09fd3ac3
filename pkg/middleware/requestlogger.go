package middleware

import (
	"log/slog"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// RequestLogger puts a request-scoped logger in the context for handlers
// to fetch with logger.FromContext. Every line it writes carries the
// request method and path plus whatever correlation, user and trace ids
// are already known.
//
// Mount it after RequestLogging, Tracing and ForwardedIdentity.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := UserIDFromContext(ctx); id != "" {
				ctx = logger.WithUserID(ctx, id)
			}

			l := logger.WithContext(ctx, base).With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, l)))
		})
	}
}
