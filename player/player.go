// Package player holds the per-player records shared by the session store,
// the derived-data caches and the upstream client.
package player

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Wallet currency identifiers used by the store wallet endpoint.
const (
	CurrencyValorantPoints  = "85ad13f7-3d1b-5128-9eb2-7cd8ee0b5741"
	CurrencyRadianitePoints = "e59aa87c-4cbf-517a-5983-6e81511be9b7"
	CurrencyKingdomCredits  = "85ca954a-41f2-ce94-9b45-8ca3dd39a00d"
)

// DefaultRegion is assumed when the account carries no region.
const DefaultRegion = "ap"

// Balance is a player's wallet.
type Balance struct {
	ValorantPoints  int64 `json:"valorantPoints"`
	RadianitePoints int64 `json:"radianitePoints"`
	KingdomCredits  int64 `json:"kingdomCredits"`
}

// BalanceFromWallet maps the wallet's currency-ID keyed balances. Missing or
// negative amounts count as zero.
func BalanceFromWallet(balances map[string]int64) Balance {
	get := func(id string) int64 { return max(balances[id], 0) }
	return Balance{
		ValorantPoints:  get(CurrencyValorantPoints),
		RadianitePoints: get(CurrencyRadianitePoints),
		KingdomCredits:  get(CurrencyKingdomCredits),
	}
}

// AccountXP is a player's account level progress.
type AccountXP struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// Profile is the identity returned by the userinfo endpoint.
type Profile struct {
	PlayerID string `json:"userId"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
	Region   string `json:"region"`
	Username string `json:"username"`
}

// NewProfile fills Username and the default region.
func NewProfile(playerID, gameName, tagLine, region string) Profile {
	if region == "" {
		region = DefaultRegion
	}
	return Profile{
		PlayerID: playerID,
		GameName: gameName,
		TagLine:  tagLine,
		Region:   region,
		Username: gameName + "#" + tagLine,
	}
}

// Credentials are what player-scoped upstream calls need.
type Credentials struct {
	PlayerID          string
	Region            string
	AccessToken       string
	EntitlementsToken string
}

// TokenFingerprint returns the profile cache key for an access token: a
// SHA-256 digest of the whole token, so tokens sharing a JWT header never
// share a key.
func TokenFingerprint(accessToken string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(accessToken)))
	return "userinfo_" + hex.EncodeToString(sum[:])
}

// BalanceKey returns the balance cache key for a player.
func BalanceKey(playerID string) string {
	return "balance_" + playerID
}

// BalanceOwner links a balance cache key back to its player.
func BalanceOwner(key string, _ Balance) string {
	return strings.TrimPrefix(key, "balance_")
}

// ProfileOwner links a cached profile to the player it describes.
func ProfileOwner(_ string, p Profile) string {
	return p.PlayerID
}
