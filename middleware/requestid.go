package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/daffatgi02/valo-apps-backend/contextx"
	"github.com/daffatgi02/valo-apps-backend/policy"
)

const maxRequestIDLen = 128

// RequestID makes sure every request carries an ID. A client-supplied
// X-Request-ID is kept when it is reasonably short; otherwise a random UUID
// is generated. The ID is echoed in the response header.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(contextx.RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(contextx.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(contextx.WithRequestID(r.Context(), id)))
		})
	}
}

// Group stores the name of the route group r matched in its context.
func Group(res *policy.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if name, _, ok := res.Resolve(r.URL.Path); ok {
				r = r.WithContext(contextx.WithGroup(r.Context(), name))
			}
			next.ServeHTTP(w, r)
		})
	}
}
