package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/contextx"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/player"
	"github.com/daffatgi02/valo-apps-backend/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// AuthHandler serves sign-in and session management.
type AuthHandler struct {
	d   Deps
	log zerolog.Logger
}

// userView is the public identity of a session.
type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
	Region   string `json:"region"`
}

func viewOf(rec session.Record) userView {
	return userView{
		ID:       rec.PlayerID,
		Username: rec.Username,
		GameName: rec.GameName,
		TagLine:  rec.TagLine,
		Region:   rec.Region,
	}
}

// GenerateURL GET /api/auth/generate-url
func (h *AuthHandler) GenerateURL(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, "Authentication URL generated", map[string]any{
		"authUrl": h.d.OAuth.AuthURL(),
		"instructions": []string{
			"Open this URL in WebView",
			"Complete Riot login process",
			"Monitor for redirect to playvalorant.com",
			"Extract tokens from URL fragment",
			"Send tokens to /api/auth/callback",
		},
	})
}

// Callback POST /api/auth/callback
//
// The sign-in redirect carries the tokens in its fragment. They are
// exchanged for an entitlements token, the account is resolved through the
// profile cache and the wallet through the balance cache. Balance and XP
// are optional: a failure leaves them null.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallbackURL string `json:"callbackUrl"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.CallbackURL == "" {
		respond.Fail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Callback URL is required")
		return
	}
	tokens, err := auth.ParseCallback(req.CallbackURL)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, errs.Code(err), "Invalid callback tokens")
		return
	}

	ctx := r.Context()
	entitlements, err := h.d.Upstream.Entitlements(ctx, tokens.AccessToken)
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to get entitlements token")
		return
	}
	profile, err := h.d.Profiles.GetOrFetch(ctx, player.TokenFingerprint(tokens.AccessToken), func(ctx context.Context) (player.Profile, error) {
		return h.d.Upstream.UserInfo(ctx, tokens.AccessToken)
	})
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to get user information")
		return
	}

	creds := player.Credentials{
		PlayerID:          profile.PlayerID,
		Region:            profile.Region,
		AccessToken:       tokens.AccessToken,
		EntitlementsToken: entitlements,
	}
	balance := h.balance(ctx, creds)
	xp := h.accountXP(ctx, creds)

	rec := h.d.Sessions.Put(profile.PlayerID, session.Record{
		AccessToken:       tokens.AccessToken,
		IDToken:           tokens.IDToken,
		EntitlementsToken: entitlements,
		TokenType:         tokens.TokenType,
		Username:          profile.Username,
		GameName:          profile.GameName,
		TagLine:           profile.TagLine,
		Region:            profile.Region,
		Balance:           balance,
		AccountXP:         xp,
	})
	token, err := h.issue(rec)
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to issue token")
		return
	}

	h.log.Info().Str("player", rec.PlayerID).Str("username", rec.Username).Msg("player authenticated")
	respond.OK(w, "Authentication successful", map[string]any{
		"token":     token,
		"user":      viewOf(rec),
		"balance":   balance,
		"accountXP": xp,
		"session": map[string]any{
			"loginTime": rec.CreatedAt.UTC(),
			"expiresIn": int64(h.d.Issuer.TTL().Seconds()),
		},
	})
}

// Profile GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.session(w, r, "Session not found or expired")
	if !ok {
		return
	}
	respond.OK(w, "", map[string]any{
		"id":        rec.PlayerID,
		"username":  rec.Username,
		"gameName":  rec.GameName,
		"tagLine":   rec.TagLine,
		"region":    rec.Region,
		"balance":   rec.Balance,
		"accountXP": rec.AccountXP,
		"session": map[string]any{
			"lastActivity": rec.LastActivity.UTC(),
			"createdAt":    rec.CreatedAt.UTC(),
		},
	})
}

// Refresh POST /api/auth/refresh
//
// The cached balance is dropped and refetched; account XP is always
// fetched. Values that fail to refresh keep their previous session copy.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.session(w, r, "Session expired, please login again")
	if !ok {
		return
	}
	ctx := r.Context()
	h.d.Balances.Invalidate(player.BalanceKey(rec.PlayerID))
	balance := h.balance(ctx, rec.Credentials())
	xp := h.accountXP(ctx, rec.Credentials())

	next := rec
	if balance != nil {
		next.Balance = balance
	}
	if xp != nil {
		next.AccountXP = xp
	}
	h.d.Sessions.Put(rec.PlayerID, next)

	h.log.Info().Str("player", rec.PlayerID).Msg("player data refreshed")
	respond.OK(w, "Data refreshed successfully", map[string]any{
		"balance":     balance,
		"accountXP":   xp,
		"refreshedAt": h.d.Now().UTC(),
	})
}

// Sessions GET /api/auth/sessions
func (h *AuthHandler) Sessions(w http.ResponseWriter, _ *http.Request) {
	all := h.d.Sessions.ListAll()
	respond.OK(w, "Active sessions retrieved", map[string]any{
		"sessions": all,
		"count":    len(all),
	})
}

// Switch POST /api/auth/switch
func (h *AuthHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.TargetUserID == "" {
		respond.Fail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Target user ID is required")
		return
	}
	if !validPlayerID(req.TargetUserID) {
		respond.Fail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid user ID format")
		return
	}
	current, _ := contextx.PlayerFromContext(r.Context())
	if req.TargetUserID == current.ID {
		respond.Fail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Cannot switch to the same account")
		return
	}

	rec, err := h.d.Sessions.Get(r.Context(), req.TargetUserID)
	if errors.Is(err, errs.ErrNotFound) {
		respond.Fail(w, http.StatusNotFound, errs.Code(err), "Target account session not found or expired")
		return
	}
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to switch account")
		return
	}
	token, err := h.issue(rec)
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to issue token")
		return
	}

	h.log.Info().Str("from", current.ID).Str("to", rec.PlayerID).Msg("account switched")
	respond.OK(w, "Account switched successfully", map[string]any{
		"token":     token,
		"user":      viewOf(rec),
		"balance":   rec.Balance,
		"accountXP": rec.AccountXP,
	})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := contextx.PlayerFromContext(r.Context())
	if err := h.d.Sessions.Remove(r.Context(), p.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to log out")
		return
	}
	h.log.Info().Str("player", p.ID).Msg("player logged out")
	respond.OK(w, "Logged out successfully", nil)
}

// LogoutAccount POST /api/auth/logout/{userId}
func (h *AuthHandler) LogoutAccount(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["userId"]
	if !validPlayerID(target) {
		respond.Fail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid user ID format")
		return
	}
	err := h.d.Sessions.Remove(r.Context(), target)
	if errors.Is(err, errs.ErrNotFound) {
		respond.Fail(w, http.StatusNotFound, errs.Code(err), "Account session not found")
		return
	}
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to log out account")
		return
	}
	current, _ := contextx.PlayerFromContext(r.Context())
	h.log.Info().Str("player", target).Str("by", current.ID).Msg("account logged out")
	respond.OK(w, "Account logged out successfully", nil)
}

// session loads the caller's session, writing a 401 when it is gone.
func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request, missing string) (session.Record, bool) {
	p, _ := contextx.PlayerFromContext(r.Context())
	rec, err := h.d.Sessions.Get(r.Context(), p.ID)
	if errors.Is(err, errs.ErrNotFound) {
		respond.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", missing)
		return session.Record{}, false
	}
	if err != nil {
		respond.Error(w, h.log, err, http.StatusBadGateway, "Failed to load session")
		return session.Record{}, false
	}
	return rec, true
}

func (h *AuthHandler) issue(rec session.Record) (string, error) {
	return h.d.Issuer.Issue(auth.Claims{
		PlayerID: rec.PlayerID,
		Username: rec.Username,
		Region:   rec.Region,
	})
}

func (h *AuthHandler) balance(ctx context.Context, creds player.Credentials) *player.Balance {
	b, err := h.d.Balances.GetOrFetch(ctx, player.BalanceKey(creds.PlayerID), func(ctx context.Context) (player.Balance, error) {
		return h.d.Upstream.Balance(ctx, creds)
	})
	if err != nil {
		h.log.Warn().Err(err).Str("player", creds.PlayerID).Msg("balance unavailable")
		return nil
	}
	return &b
}

func (h *AuthHandler) accountXP(ctx context.Context, creds player.Credentials) *player.AccountXP {
	xp, err := h.d.Upstream.AccountXP(ctx, creds)
	if err != nil {
		h.log.Warn().Err(err).Str("player", creds.PlayerID).Msg("account xp unavailable")
		return nil
	}
	return &xp
}

// decodeBody decodes a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errs.ErrInvalidArgument
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Join(errs.ErrInvalidArgument, err)
	}
	return nil
}

// validPlayerID reports whether id is a player UUID.
func validPlayerID(id string) bool {
	return uuid.Validate(id) == nil
}
