package middleware

import (
	"net/http"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/security"
)

// IPBlock rejects requests the blocker does not allow with 403.
func IPBlock(b *security.IPBlocker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !b.Allow(r) {
				respond.Fail(w, http.StatusForbidden, "FORBIDDEN", "blocked")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
