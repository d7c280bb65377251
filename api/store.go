package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/contextx"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/session"
)

// StoreHandler serves the daily store.
type StoreHandler struct {
	sessions *session.Store
	store    Store
	log      zerolog.Logger
}

// Daily GET /api/store/daily
func (h *StoreHandler) Daily(w http.ResponseWriter, r *http.Request) {
	p, _ := contextx.PlayerFromContext(r.Context())
	rec, err := h.sessions.Get(r.Context(), p.ID)
	if errors.Is(err, errs.ErrNotFound) {
		respond.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session not found")
		return
	}
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to load session")
		return
	}

	listing, err := h.store.Daily(r.Context(), rec.Credentials())
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Unable to fetch daily store")
		return
	}
	h.log.Info().Str("player", p.ID).Int("items", len(listing.Items)).Bool("enriched", listing.Enriched).Msg("daily store served")
	respond.OK(w, "", map[string]any{
		"store":       listing.Items,
		"refreshTime": listing.RefreshTime,
		"expires":     listing.Expires,
		"enriched":    listing.Enriched,
	})
}
