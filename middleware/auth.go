package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/policy"
)

// Auth runs fn for every route whose group has AuthRequired set and
// forwards the context it returns. Failures are answered directly.
func Auth(res *policy.Resolver, fn auth.AuthFunc, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, pol, ok := res.Resolve(r.URL.Path); !ok || pol == nil || !pol.AuthRequired {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := fn(r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				respond.Error(w, log, err, http.StatusServiceUnavailable, "authentication error")
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
