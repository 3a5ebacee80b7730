package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Middleware attaches the request principal. Bearer tokens take precedence
// over the session user; an invalid token is rejected with 401. Requests
// with neither pass through anonymous.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if raw, ok := BearerToken(r); ok {
				p, err := service.PrincipalFromToken(ctx, raw)
				if err != nil {
					if httpx.StatusFor(err) >= http.StatusInternalServerError {
						logger.Error("resolve bearer principal", slog.Any("error", err))
					}
					httpx.RespondError(w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(ctx, p)))
				return
			}
			if sess := shared.SessionFromContext(ctx); sess != nil && sess.User() != "" {
				if id, err := strconv.ParseInt(sess.User(), 10, 64); err == nil && id > 0 {
					ctx = shared.ContextWithPrincipal(ctx, shared.Principal{UserID: id})
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
