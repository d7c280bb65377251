package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/errs"
)

// GameDataHandler serves the shared catalog. Reads never fail while a
// stale copy exists; the response says how fresh the data is.
type GameDataHandler struct {
	catalog Catalog
	log     zerolog.Logger
}

// catalogResponse is the game data body: the envelope plus freshness.
type catalogResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Data      any               `json:"data"`
	Count     *int              `json:"count,omitempty"`
	Cached    bool              `json:"cached"`
	Freshness catalog.Freshness `json:"freshness"`
}

func writeCatalog(w http.ResponseWriter, data any, count *int, f catalog.Freshness) {
	respond.WriteJSON(w, http.StatusOK, catalogResponse{
		Success:   true,
		Data:      data,
		Count:     count,
		Cached:    f != catalog.Fetched,
		Freshness: f,
	})
}

func (h *GameDataHandler) unavailable(w http.ResponseWriter, err error, dataset string) {
	h.log.Error().Err(err).Str("dataset", dataset).Msg("catalog read failed")
	respond.Fail(w, http.StatusServiceUnavailable, errs.Code(err), "Unable to fetch "+dataset+" data at the moment")
}

// Skins GET /api/game-data/skins
func (h *GameDataHandler) Skins(w http.ResponseWriter, r *http.Request) {
	skins, f, err := h.catalog.Skins(r.Context())
	if err != nil {
		h.unavailable(w, err, "skins")
		return
	}
	n := len(skins)
	writeCatalog(w, skins, &n, f)
}

// Bundles GET /api/game-data/bundles
func (h *GameDataHandler) Bundles(w http.ResponseWriter, r *http.Request) {
	bundles, f, err := h.catalog.Bundles(r.Context())
	if err != nil {
		h.unavailable(w, err, "bundles")
		return
	}
	n := len(bundles)
	writeCatalog(w, bundles, &n, f)
}

// Version GET /api/game-data/version
func (h *GameDataHandler) Version(w http.ResponseWriter, r *http.Request) {
	v, f := h.catalog.Version(r.Context())
	writeCatalog(w, v, nil, f)
}

// Health GET /api/game-data/health
func (h *GameDataHandler) Health(w http.ResponseWriter, _ *http.Request) {
	health := h.catalog.Health()
	msg := "Game data service is initializing"
	if health.Initialized {
		msg = "Game data service is healthy"
	}
	respond.OK(w, msg, health)
}
