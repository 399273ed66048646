package game

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultIconTemplate builds an icon URL from an item id.
const DefaultIconTemplate = "https://api.joshlei.com/v2/growagarden/image/{id}"

type CatalogEntry struct {
	ItemID      string `json:"item_id"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon,omitempty"`
}

// Catalog enriches notifications with display metadata. A missing entry is
// never an error: Lookup synthesizes one from the item id.
type Catalog struct {
	mu           sync.RWMutex
	entries      map[string]CatalogEntry
	iconTemplate string
	updatedAt    time.Time
}

func NewCatalog(iconTemplate string) *Catalog {
	if strings.TrimSpace(iconTemplate) == "" {
		iconTemplate = DefaultIconTemplate
	}
	return &Catalog{
		entries:      make(map[string]CatalogEntry),
		iconTemplate: iconTemplate,
	}
}

// Replace swaps the whole catalog.
func (c *Catalog) Replace(entries []CatalogEntry) {
	m := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.ItemID] = e
	}
	c.mu.Lock()
	c.entries = m
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

// Lookup returns the entry for id, filling in a display name and icon when
// the catalog lacks them.
func (c *Catalog) Lookup(id string) CatalogEntry {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		e = CatalogEntry{ItemID: id}
	}
	if strings.TrimSpace(e.DisplayName) == "" {
		e.DisplayName = FallbackName(id)
	}
	if strings.TrimSpace(e.Icon) == "" {
		e.Icon = c.IconURL(id)
	}
	return e
}

func (c *Catalog) IconURL(id string) string {
	return strings.ReplaceAll(c.iconTemplate, "{id}", url.PathEscape(id))
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Entries returns a copy sorted by item id.
func (c *Catalog) Entries() []CatalogEntry {
	c.mu.RLock()
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// FallbackName turns "carrot_seed" into "Carrot Seed".
func FallbackName(id string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(id))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return id
	}
	// Casers carry state; one per call.
	return cases.Title(language.English).String(s)
}
