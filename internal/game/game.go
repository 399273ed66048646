// File: internal/game/game.go
package game

import (
	"sort"
	"time"
)

// Category is one of the upstream shop feeds.
type Category string

const (
	CategorySeed      Category = "seed_stock"
	CategoryGear      Category = "gear_stock"
	CategoryEgg       Category = "egg_stock"
	CategoryCosmetic  Category = "cosmetic_stock"
	CategoryEventShop Category = "eventshop_stock"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategorySeed,
	CategoryGear,
	CategoryEgg,
	CategoryCosmetic,
	CategoryEventShop,
}

func IsCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

type StockItem struct {
	ItemID      string `json:"item_id"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
	Icon        string `json:"icon,omitempty"`
}

// StockSnapshot is the last fully parsed stock payload. It is replaced
// wholesale on every change.
type StockSnapshot map[Category][]StockItem

// Flatten returns every item across categories, in category order.
func (s StockSnapshot) Flatten() []StockItem {
	var out []StockItem
	for _, c := range Categories {
		out = append(out, s[c]...)
	}
	return out
}

// Len counts items across all categories.
func (s StockSnapshot) Len() int {
	n := 0
	for _, items := range s {
		n += len(items)
	}
	return n
}

type WeatherEvent struct {
	WeatherID     string `json:"weather_id"`
	WeatherName   string `json:"weather_name"`
	Active        bool   `json:"active"`
	Duration      int    `json:"duration"` // seconds
	DiscordInvite string `json:"discord_invite,omitempty"`
}

// Minutes is the duration in whole minutes, rounded down.
func (e WeatherEvent) Minutes() int {
	if e.Duration <= 0 {
		return 0
	}
	return e.Duration / 60
}

type WeatherSnapshot []WeatherEvent

// Active returns the first active event. Upstream promises at most one.
func (w WeatherSnapshot) Active() (WeatherEvent, bool) {
	for _, e := range w {
		if e.Active {
			return e, true
		}
	}
	return WeatherEvent{}, false
}

// Payload is one upstream observation. A nil Stock or Weather means the feed
// was not part of this observation (failed fetch, partial stream message).
type Payload struct {
	Stock      StockSnapshot
	Weather    WeatherSnapshot
	ReceivedAt time.Time
}

func (p Payload) Empty() bool { return p.Stock == nil && p.Weather == nil }

// ItemIDs returns the distinct item ids present in a snapshot, sorted.
func (s StockSnapshot) ItemIDs() []string {
	seen := make(map[string]struct{})
	for _, items := range s {
		for _, it := range items {
			seen[it.ItemID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
