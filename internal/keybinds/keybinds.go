// Package keybinds loads and indexes the static keybind catalog.
//
// The catalog is a YAML document mapping category → name → binding. A
// reload replaces the catalog wholesale; it is never merged incrementally.
package keybinds

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

// bindSpec is the YAML shape of a single binding.
type bindSpec struct {
	Keys     []string `yaml:"keys"`
	Action   string   `yaml:"action"`
	Duration float64  `yaml:"duration"`
	Aliases  []string `yaml:"aliases"`
	Response string   `yaml:"response"`
}

// AliasEntry pairs one alias with its keybind, for trigger resolution.
type AliasEntry struct {
	Alias string
	Bind  models.Keybind
}

// Catalog holds the loaded keybinds and their alias index.
type Catalog struct {
	mu         sync.RWMutex
	binds      map[string]models.Keybind
	categories map[string][]string // category → bind names, insertion order
	catOrder   []string
	aliasIndex map[string]string // lowercase alias → bind name
	aliasOrder []AliasEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.reset()
	return c
}

func (c *Catalog) reset() {
	c.binds = make(map[string]models.Keybind)
	c.categories = make(map[string][]string)
	c.catOrder = nil
	c.aliasIndex = make(map[string]string)
	c.aliasOrder = nil
}

// Load reads a YAML catalog file and replaces the current contents.
// A missing file leaves an empty catalog rather than failing startup.
func (c *Catalog) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Catalog keybinds file not found", "path", path)
			c.mu.Lock()
			c.reset()
			c.mu.Unlock()
			return nil
		}
		slog.Error("Catalog failed to read keybinds file", "error", err, "path", path)
		return fmt.Errorf("failed to read keybinds file: %w", err)
	}
	return c.LoadYAML(data)
}

// LoadYAML parses a YAML catalog document and replaces the current
// contents wholesale.
func (c *Catalog) LoadYAML(data []byte) error {
	var doc map[string]map[string]bindSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Error("Catalog failed to parse keybinds YAML", "error", err)
		return fmt.Errorf("failed to parse keybinds YAML: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()

	// Sorted category/name iteration keeps reloads deterministic.
	cats := make([]string, 0, len(doc))
	for cat := range doc {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		c.catOrder = append(c.catOrder, cat)
		names := make([]string, 0, len(doc[cat]))
		for name := range doc[cat] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			spec := doc[cat][name]
			bind := models.Keybind{
				Name:     name,
				Category: cat,
				Keys:     spec.Keys,
				Action:   models.KindForActionType(spec.Action),
				Duration: spec.Duration,
				Aliases:  spec.Aliases,
				Response: spec.Response,
			}
			c.binds[name] = bind
			c.categories[cat] = append(c.categories[cat], name)
			for _, alias := range spec.Aliases {
				lower := strings.ToLower(strings.TrimSpace(alias))
				if lower == "" {
					continue
				}
				c.aliasIndex[lower] = name
				c.aliasOrder = append(c.aliasOrder, AliasEntry{Alias: lower, Bind: bind})
			}
		}
	}

	slog.Info("Catalog keybinds loaded", "total", len(c.binds), "categories", len(c.catOrder))
	return nil
}

// Get returns a keybind by its internal name.
func (c *Catalog) Get(name string) (models.Keybind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.binds[name]
	return b, ok
}

// GetByAlias returns the keybind for an exact alias, case-insensitively.
func (c *Catalog) GetByAlias(alias string) (models.Keybind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.aliasIndex[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return models.Keybind{}, false
	}
	return c.binds[name], true
}

// AliasEntries returns every alias paired with its keybind, in catalog
// enumeration order.
func (c *Catalog) AliasEntries() []AliasEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AliasEntry, len(c.aliasOrder))
	copy(out, c.aliasOrder)
	return out
}

// ByCategory returns all keybinds in a category.
func (c *Catalog) ByCategory(category string) []models.Keybind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Keybind
	for _, name := range c.categories[category] {
		out = append(out, c.binds[name])
	}
	return out
}

// Categories returns all category names.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.catOrder))
	copy(out, c.catOrder)
	return out
}

// List returns all keybinds.
func (c *Catalog) List() []models.Keybind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Keybind
	for _, cat := range c.catOrder {
		for _, name := range c.categories[cat] {
			out = append(out, c.binds[name])
		}
	}
	return out
}

// Len returns the number of loaded keybinds.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.binds)
}

// menuAliasLimit caps how many aliases are listed per bind in the menu.
const menuAliasLimit = 3

// MenuText formats the catalog as the textual command menu supplied to the
// completion service.
func (c *Catalog) MenuText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines := []string{"Available commands:"}
	for _, cat := range c.catOrder {
		lines = append(lines, "", strings.ToUpper(cat)+":")
		for _, name := range c.categories[cat] {
			bind := c.binds[name]
			aliases := bind.Aliases
			suffix := ""
			if len(aliases) > menuAliasLimit {
				suffix = fmt.Sprintf(" (+%d more)", len(aliases)-menuAliasLimit)
				aliases = aliases[:menuAliasLimit]
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s%s", name, strings.Join(aliases, ", "), suffix))
		}
	}
	return strings.Join(lines, "\n")
}
