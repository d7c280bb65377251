package upstream

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/player"
	"github.com/daffatgi02/valo-apps-backend/storefront"
)

var regionPattern = regexp.MustCompile(`^[a-z]{2,8}$`)

// Skins fetches every weapon skin. Client satisfies catalog.Source.
func (c *Client) Skins(ctx context.Context) ([]catalog.Skin, error) {
	var out []catalog.Skin
	err := c.do(ctx, request{
		op:       "skins",
		group:    GroupCatalog,
		method:   http.MethodGet,
		url:      c.cfg.CatalogBaseURL + "/v1/weapons/skins",
		query:    map[string]string{"language": c.cfg.Language},
		timeout:  c.cfg.CatalogTimeout,
		envelope: true,
		out:      &out,
	})
	return out, err
}

// Bundles fetches every store bundle.
func (c *Client) Bundles(ctx context.Context) ([]catalog.Bundle, error) {
	var out []catalog.Bundle
	err := c.do(ctx, request{
		op:       "bundles",
		group:    GroupCatalog,
		method:   http.MethodGet,
		url:      c.cfg.CatalogBaseURL + "/v1/bundles",
		query:    map[string]string{"language": c.cfg.Language},
		timeout:  c.cfg.CatalogTimeout,
		envelope: true,
		out:      &out,
	})
	return out, err
}

// Version fetches the current game client version.
func (c *Client) Version(ctx context.Context) (catalog.Version, error) {
	var out catalog.Version
	err := c.do(ctx, request{
		op:       "version",
		group:    GroupCatalog,
		method:   http.MethodGet,
		url:      c.cfg.CatalogBaseURL + "/v1/version",
		timeout:  c.cfg.PlayerTimeout,
		envelope: true,
		out:      &out,
	})
	return out, err
}

type userInfoResponse struct {
	Sub  string `json:"sub"`
	Acct struct {
		GameName string `json:"game_name"`
		TagLine  string `json:"tag_line"`
		Region   string `json:"region"`
	} `json:"acct"`
}

// UserInfo resolves the account behind an access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (player.Profile, error) {
	var out userInfoResponse
	err := c.do(ctx, request{
		op:      "userinfo",
		group:   GroupAuth,
		method:  http.MethodGet,
		url:     c.cfg.AuthBaseURL + "/userinfo",
		bearer:  accessToken,
		timeout: c.cfg.PlayerTimeout,
		out:     &out,
	})
	if err != nil {
		return player.Profile{}, err
	}
	if out.Sub == "" {
		return player.Profile{}, errs.Upstream("userinfo", http.StatusOK, errs.ErrMalformedResponse, fmt.Errorf("missing subject"))
	}
	return player.NewProfile(out.Sub, out.Acct.GameName, out.Acct.TagLine, out.Acct.Region), nil
}

// Entitlements exchanges an access token for an entitlements token.
func (c *Client) Entitlements(ctx context.Context, accessToken string) (string, error) {
	var out struct {
		Token string `json:"entitlements_token"`
	}
	err := c.do(ctx, request{
		op:      "entitlements",
		group:   GroupAuth,
		method:  http.MethodPost,
		url:     c.cfg.EntitlementsURL,
		bearer:  accessToken,
		body:    struct{}{},
		timeout: c.cfg.PlayerTimeout,
		out:     &out,
	})
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errs.Upstream("entitlements", http.StatusOK, errs.ErrMalformedResponse, fmt.Errorf("empty entitlements_token"))
	}
	return out.Token, nil
}

// Balance fetches a player's wallet.
func (c *Client) Balance(ctx context.Context, creds player.Credentials) (player.Balance, error) {
	base, err := c.pdURL(creds.Region)
	if err != nil {
		return player.Balance{}, err
	}
	var out struct {
		Balances map[string]int64 `json:"Balances"`
	}
	err = c.do(ctx, request{
		op:      "balance",
		group:   GroupPD,
		method:  http.MethodGet,
		url:     base + "/store/v1/wallet/" + creds.PlayerID,
		headers: c.playerHeaders(creds, ""),
		bearer:  creds.AccessToken,
		timeout: c.cfg.PlayerTimeout,
		out:     &out,
	})
	if err != nil {
		return player.Balance{}, err
	}
	return player.BalanceFromWallet(out.Balances), nil
}

// AccountXP fetches a player's account level.
func (c *Client) AccountXP(ctx context.Context, creds player.Credentials) (player.AccountXP, error) {
	base, err := c.pdURL(creds.Region)
	if err != nil {
		return player.AccountXP{}, err
	}
	var out struct {
		Progress struct {
			Level int `json:"Level"`
			XP    int `json:"XP"`
		} `json:"Progress"`
	}
	err = c.do(ctx, request{
		op:      "account_xp",
		group:   GroupPD,
		method:  http.MethodGet,
		url:     base + "/account-xp/v1/players/" + creds.PlayerID,
		headers: c.playerHeaders(creds, ""),
		bearer:  creds.AccessToken,
		timeout: c.cfg.PlayerTimeout,
		out:     &out,
	})
	if err != nil {
		return player.AccountXP{}, err
	}
	return player.AccountXP{Level: out.Progress.Level, XP: out.Progress.XP}, nil
}

// Storefront fetches a player's daily store offer.
func (c *Client) Storefront(ctx context.Context, creds player.Credentials, clientVersion string) (storefront.Offer, error) {
	base, err := c.pdURL(creds.Region)
	if err != nil {
		return storefront.Offer{}, err
	}
	var out struct {
		SkinsPanelLayout *struct {
			SingleItemOffers                           []string `json:"SingleItemOffers"`
			SingleItemOffersRemainingDurationInSeconds int64    `json:"SingleItemOffersRemainingDurationInSeconds"`
		} `json:"SkinsPanelLayout"`
	}
	err = c.do(ctx, request{
		op:      "storefront",
		group:   GroupPD,
		method:  http.MethodGet,
		url:     base + "/store/v2/storefront/" + creds.PlayerID,
		headers: c.playerHeaders(creds, clientVersion),
		bearer:  creds.AccessToken,
		timeout: c.cfg.PlayerTimeout,
		out:     &out,
	})
	if err != nil {
		return storefront.Offer{}, err
	}
	if out.SkinsPanelLayout == nil {
		return storefront.Offer{}, errs.Upstream("storefront", http.StatusOK, errs.ErrMalformedResponse, fmt.Errorf("missing SkinsPanelLayout"))
	}
	expires := c.cfg.Now().Add(time.Duration(out.SkinsPanelLayout.SingleItemOffersRemainingDurationInSeconds) * time.Second)
	return storefront.Offer{
		ItemIDs:     out.SkinsPanelLayout.SingleItemOffers,
		RefreshTime: expires,
		Expires:     expires,
	}, nil
}

func (c *Client) pdURL(region string) (string, error) {
	region = strings.ToLower(region)
	if region == "" {
		region = player.DefaultRegion
	}
	if !regionPattern.MatchString(region) {
		return "", fmt.Errorf("region %q: %w", region, errs.ErrInvalidArgument)
	}
	return strings.ReplaceAll(c.cfg.PDURLTemplate, "{region}", region), nil
}

func (c *Client) playerHeaders(creds player.Credentials, clientVersion string) map[string]string {
	h := map[string]string{
		"X-Riot-Entitlements-JWT": creds.EntitlementsToken,
		"X-Riot-ClientPlatform":   c.cfg.ClientPlatform,
	}
	if clientVersion != "" {
		h["X-Riot-ClientVersion"] = clientVersion
	}
	return h
}
