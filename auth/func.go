package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/daffatgi02/valo-apps-backend/contextx"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/session"
)

// AuthFunc authenticates an HTTP request. On success it returns a
// (possibly enriched) context; on failure an error the middleware turns
// into a response.
type AuthFunc func(r *http.Request) (context.Context, error)

// Sessions looks up a live session. *session.Store implements it.
type Sessions interface {
	Get(ctx context.Context, playerID string) (session.Record, error)
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

// SessionAuth accepts requests carrying a valid API token whose player still
// has a live session. The session read counts as activity. The player is
// stored in the context with contextx.WithPlayer.
func SessionAuth(iss *Issuer, sessions Sessions) AuthFunc {
	return func(r *http.Request) (context.Context, error) {
		tok, ok := BearerToken(r)
		if !ok {
			return nil, fmt.Errorf("access token is required: %w", errs.ErrUnauthorized)
		}
		claims, err := iss.Verify(tok)
		if err != nil {
			return nil, err
		}
		rec, err := sessions.Get(r.Context(), claims.PlayerID)
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("session expired, please login again: %w", errs.ErrUnauthorized)
		}
		if err != nil {
			return nil, err
		}
		return contextx.WithPlayer(r.Context(), contextx.Player{
			ID:       claims.PlayerID,
			Username: rec.Username,
			Region:   rec.Region,
		}), nil
	}
}
