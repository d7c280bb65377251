package catalog

// FallbackVersion is reported when no client version has ever been fetched.
const FallbackVersion = "release-08.05-shipping-11-878609"

// Level is one upgrade level of a skin. Store offers reference levels by
// UUID, not skins.
type Level struct {
	UUID          string `json:"uuid"`
	DisplayName   string `json:"displayName"`
	LevelItem     string `json:"levelItem,omitempty"`
	DisplayIcon   string `json:"displayIcon,omitempty"`
	StreamedVideo string `json:"streamedVideo,omitempty"`
}

// Chroma is a colour variant of a skin.
type Chroma struct {
	UUID          string `json:"uuid"`
	DisplayName   string `json:"displayName"`
	DisplayIcon   string `json:"displayIcon,omitempty"`
	FullRender    string `json:"fullRender,omitempty"`
	Swatch        string `json:"swatch,omitempty"`
	StreamedVideo string `json:"streamedVideo,omitempty"`
}

// Skin is a weapon skin definition.
type Skin struct {
	UUID            string   `json:"uuid"`
	DisplayName     string   `json:"displayName"`
	ThemeUUID       string   `json:"themeUuid,omitempty"`
	ContentTierUUID string   `json:"contentTierUuid,omitempty"`
	DisplayIcon     string   `json:"displayIcon,omitempty"`
	Wallpaper       string   `json:"wallpaper,omitempty"`
	StreamedVideo   string   `json:"streamedVideo,omitempty"`
	Chromas         []Chroma `json:"chromas,omitempty"`
	Levels          []Level  `json:"levels"`
}

// Bundle is a store bundle definition.
type Bundle struct {
	UUID               string `json:"uuid"`
	DisplayName        string `json:"displayName"`
	DisplayNameSubText string `json:"displayNameSubText,omitempty"`
	Description        string `json:"description,omitempty"`
	ExtraDescription   string `json:"extraDescription,omitempty"`
	PromoDescription   string `json:"promoDescription,omitempty"`
	DisplayIcon        string `json:"displayIcon,omitempty"`
	DisplayIcon2       string `json:"displayIcon2,omitempty"`
	VerticalPromoImage string `json:"verticalPromoImage,omitempty"`
}

// Version is the game client version.
type Version struct {
	ManifestID        string `json:"manifestId,omitempty"`
	Branch            string `json:"branch,omitempty"`
	Version           string `json:"version"`
	BuildVersion      string `json:"buildVersion,omitempty"`
	EngineVersion     string `json:"engineVersion,omitempty"`
	RiotClientVersion string `json:"riotClientVersion,omitempty"`
	RiotClientBuild   string `json:"riotClientBuild,omitempty"`
	BuildDate         string `json:"buildDate,omitempty"`
}

func fallbackVersion() Version {
	return Version{Version: FallbackVersion, RiotClientBuild: FallbackVersion}
}

// Snapshot is the part of the catalog the store join reads.
type Snapshot struct {
	Skins   []Skin
	Bundles []Bundle
}

// Freshness tags where a catalog read came from.
type Freshness int

const (
	// Fresh values were served from an unexpired cache entry.
	Fresh Freshness = iota
	// Fetched values were just loaded from upstream.
	Fetched
	// Stale values are past their TTL and served because upstream failed.
	Stale
	// Fallback is the built-in version used when nothing was ever cached.
	Fallback
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Fetched:
		return "fetched"
	case Stale:
		return "stale"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MarshalText renders the tag as its name.
func (f Freshness) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Degraded reports whether the value did not come from a live upstream view.
func (f Freshness) Degraded() bool {
	return f == Stale || f == Fallback
}

// State is the loader's lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	Degraded
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Presence reports which datasets hold an unexpired value.
type Presence struct {
	Skins   bool `json:"skins"`
	Bundles bool `json:"bundles"`
	Version bool `json:"version"`
}

// Health is a snapshot of loader state and dataset occupancy.
type Health struct {
	Initialized bool     `json:"initialized"`
	State       State    `json:"state"`
	Datasets    Presence `json:"cacheStats"`
}
