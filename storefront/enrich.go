// Package storefront builds a player's daily store listing: the raw offer
// from upstream joined against the catalog.
package storefront

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daffatgi02/valo-apps-backend/catalog"
)

// Offer is the raw daily store: level UUIDs and when the rotation ends.
type Offer struct {
	ItemIDs     []string  `json:"skins"`
	RefreshTime time.Time `json:"refreshTime"`
	Expires     time.Time `json:"expires"`
}

// BundleInfo is the bundle a skin was matched to.
type BundleInfo struct {
	DisplayName string `json:"displayName"`
	DisplayIcon string `json:"displayIcon,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item is one store slot. Only ID is set when the level is not in the
// catalog.
type Item struct {
	ID              string      `json:"id"`
	DisplayName     string      `json:"displayName,omitempty"`
	DisplayIcon     string      `json:"displayIcon,omitempty"`
	StreamedVideo   string      `json:"streamedVideo,omitempty"`
	ThemeUUID       string      `json:"themeUuid,omitempty"`
	ContentTierUUID string      `json:"contentTierUuid,omitempty"`
	Wallpaper       string      `json:"wallpaper,omitempty"`
	Bundle          *BundleInfo `json:"bundle,omitempty"`
}

// Listing is the display-ready store. Enriched is false when the catalog was
// not available and Items carry IDs only.
type Listing struct {
	Items       []Item    `json:"skins"`
	RefreshTime time.Time `json:"refreshTime"`
	Expires     time.Time `json:"expires"`
	Enriched    bool      `json:"enriched"`
}

// Enrich joins offer against snap. Items keep their order. A nil snapshot
// leaves the items as bare IDs.
func Enrich(offer Offer, snap *catalog.Snapshot) Listing {
	out := Listing{
		Items:       make([]Item, len(offer.ItemIDs)),
		RefreshTime: offer.RefreshTime,
		Expires:     offer.Expires,
		Enriched:    snap != nil,
	}
	for i, id := range offer.ItemIDs {
		out.Items[i] = Item{ID: id}
		if snap == nil {
			continue
		}
		skin, ok := findSkin(snap.Skins, id)
		if !ok {
			continue
		}
		out.Items[i] = Item{
			ID:              id,
			DisplayName:     skin.DisplayName,
			DisplayIcon:     skin.DisplayIcon,
			StreamedVideo:   skin.StreamedVideo,
			ThemeUUID:       skin.ThemeUUID,
			ContentTierUUID: skin.ContentTierUUID,
			Wallpaper:       skin.Wallpaper,
			Bundle:          findBundle(snap.Bundles, skin.DisplayName),
		}
	}
	return out
}

// findSkin returns the first skin, in catalog order, with a level whose UUID
// is levelID. UUIDs compare in canonical form, so case and braces don't matter.
func findSkin(skins []catalog.Skin, levelID string) (catalog.Skin, bool) {
	want := normalizeID(levelID)
	for _, s := range skins {
		for _, l := range s.Levels {
			if normalizeID(l.UUID) == want {
				return s, true
			}
		}
	}
	return catalog.Skin{}, false
}

// normalizeID returns the canonical lower-case form of a UUID, or id itself
// when it does not parse as one.
func normalizeID(id string) string {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return id
	}
	return u.String()
}

// findBundle returns the first bundle, in catalog order, whose display name
// is contained in skinName. There is no bundle ID on a skin, so this is a
// name heuristic: "Prime" matches "Prime Vandal" and "Prime//2.0 Vandal".
func findBundle(bundles []catalog.Bundle, skinName string) *BundleInfo {
	if skinName == "" {
		return nil
	}
	for _, b := range bundles {
		if b.DisplayName != "" && strings.Contains(skinName, b.DisplayName) {
			return &BundleInfo{
				DisplayName: b.DisplayName,
				DisplayIcon: b.DisplayIcon,
				Description: b.Description,
			}
		}
	}
	return nil
}
