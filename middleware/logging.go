package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/contextx"
	"github.com/daffatgi02/valo-apps-backend/security"
)

// AccessLog writes one line per request once the response is done.
func AccessLog(log zerolog.Logger, clients *security.ClientResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			ev := log.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("dur", time.Since(start)).
				Str("remote", clients.Key(r)).
				Str("group", contextx.GroupFromContext(r.Context())).
				Str("request_id", contextx.RequestIDFromContext(r.Context())).
				Msg("request")
		})
	}
}
