// Package auth covers the account sign-in handshake and the API tokens
// handed out once a player is signed in.
//
// Sign-in is implicit-grant: the client opens [OAuthConfig.AuthURL] in a
// web view, the account service redirects back with the tokens in the URL
// fragment, and the client posts that URL to the callback endpoint where
// [ParseCallback] pulls the tokens out.
package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/daffatgi02/valo-apps-backend/errs"
)

// OAuthConfig describes the authorize request.
type OAuthConfig struct {
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	Nonce        string
}

// DefaultOAuth returns the parameters used by the game's web client.
func DefaultOAuth() OAuthConfig {
	return OAuthConfig{
		AuthorizeURL: "https://auth.riotgames.com/authorize",
		ClientID:     "play-valorant-web-prod",
		RedirectURI:  "https://playvalorant.com/opt_in",
		ResponseType: "token id_token",
		Scope:        "account openid",
		Nonce:        "1",
	}
}

// AuthURL builds the URL the client opens to sign in.
func (o OAuthConfig) AuthURL() string {
	q := url.Values{}
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("client_id", o.ClientID)
	q.Set("response_type", o.ResponseType)
	q.Set("nonce", o.Nonce)
	q.Set("scope", o.Scope)
	return o.AuthorizeURL + "?" + q.Encode()
}

// Tokens are the credentials carried in the redirect fragment.
type Tokens struct {
	AccessToken string
	IDToken     string
	TokenType   string
}

// ParseCallback extracts the tokens from the redirect URL the client was
// sent to after signing in. TokenType defaults to Bearer.
func ParseCallback(raw string) (Tokens, error) {
	if !strings.Contains(raw, "access_token") {
		return Tokens{}, fmt.Errorf("callback url has no access_token: %w", errs.ErrInvalidArgument)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Tokens{}, fmt.Errorf("callback url: %w: %w", errs.ErrInvalidArgument, err)
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return Tokens{}, fmt.Errorf("callback fragment: %w: %w", errs.ErrInvalidArgument, err)
	}

	t := Tokens{
		AccessToken: frag.Get("access_token"),
		IDToken:     frag.Get("id_token"),
		TokenType:   frag.Get("token_type"),
	}
	if t.AccessToken == "" || t.IDToken == "" {
		return Tokens{}, fmt.Errorf("callback is missing access_token or id_token: %w", errs.ErrInvalidArgument)
	}
	if t.TokenType == "" {
		t.TokenType = "Bearer"
	}
	return t, nil
}
