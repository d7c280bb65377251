package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/daffatgi02/valo-apps-backend/policy"
)

// Timeout bounds the request context by the route group's Timeout, or by
// def when the group sets none. A zero result leaves the context alone.
func Timeout(res *policy.Resolver, def time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := def
			if _, pol, ok := res.Resolve(r.URL.Path); ok && pol != nil && pol.Timeout > 0 {
				d = pol.Timeout
			}
			if d > 0 {
				ctx, cancel := context.WithTimeout(r.Context(), d)
				defer cancel()
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
