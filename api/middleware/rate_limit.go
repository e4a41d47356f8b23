package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avelarsoto/tianguis-backend/api/responses"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

const (
	defaultRateLimitWindow = time.Minute
	defaultRateLimit       = 120
)

type fixedWindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit applies a fixed-window limit per caller. The scope is the user
// when identity is present and falls back to the client IP otherwise.
func RateLimit(store fixedWindowStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			scope := UserIDFromContext(r.Context())
			if scope == "" {
				scope = clientIP(r)
			}
			allowed, _, err := store.FixedWindowAllow(r.Context(), scope, defaultRateLimit, defaultRateLimitWindow)
			if err != nil {
				// fail open on store errors
				if logg != nil {
					logg.Warn(r.Context(), "rate limit check failed: "+err.Error())
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first := strings.Split(forwarded, ",")[0]; first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
