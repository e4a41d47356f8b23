package middleware

import (
	"net/http"
	"strings"

	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-Actor-Role"
)

// Actor lifts the caller identity forwarded by the edge gateway into the
// request context so handlers and the outbox can attribute actions.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := strings.TrimSpace(r.Header.Get(headerUserID)); userID != "" {
				ctx = WithUserID(ctx, userID)
				if logg != nil {
					ctx = logg.WithField(ctx, "user_id", userID)
				}
			}
			if role := strings.TrimSpace(r.Header.Get(headerRole)); role != "" {
				ctx = WithRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
