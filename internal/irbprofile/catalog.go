package irbprofile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Catalog holds the known profiles in memory. Built-ins are seeded at
// construction; imported profiles arrive only through Upsert.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	order    []string
	defaults string
}

// NewCatalog seeds the built-in profile set and marks its default.
func NewCatalog() *Catalog {
	c := &Catalog{
		profiles: map[string]Profile{},
		defaults: BuiltinID,
	}
	b := builtinProfile()
	c.profiles[b.ID] = b
	c.order = append(c.order, b.ID)
	return c
}

// DefaultID returns the id used when a caller does not choose a profile.
func (c *Catalog) DefaultID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults
}

// Get looks up a profile by id.
func (c *Catalog) Get(id string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[id]
	return p, ok
}

// Resolve returns the profile for id, falling back to the default when id is
// empty or unknown.
func (c *Catalog) Resolve(id string) Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[id]; ok {
		return p
	}
	return c.profiles[c.defaults]
}

// List returns the profiles in insertion order, built-ins first.
func (c *Catalog) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.profiles[id])
	}
	return out
}

// Upsert inserts the profile or replaces the entry with the same id. The
// catalog never holds two profiles with one id.
func (c *Catalog) Upsert(p Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.profiles[p.ID]; !exists {
		c.order = append(c.order, p.ID)
	}
	c.profiles[p.ID] = p
	return nil
}

// Exists reports whether id is already taken.
func (c *Catalog) Exists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.profiles[id]
	return ok
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}

// Slug reduces an organization name to a lowercase token usable in ids.
func Slug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('_')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "org"
	}
	return s
}

// ImporterVersionPrefix marks catalog entries synthesized by the importer.
const ImporterVersionPrefix = "importer-"

// ImportedProfileID derives a catalog id for an imported draft. Re-importing
// an organization reuses its prior id so an apply replaces the old draft; a
// collision with anything else gets a numeric suffix so an apply never
// clobbers an unrelated profile.
func (c *Catalog) ImportedProfileID(orgName string) string {
	base := fmt.Sprintf("imported_%s_v1", Slug(orgName))
	c.mu.RLock()
	defer c.mu.RUnlock()
	existing, taken := c.profiles[base]
	if !taken || strings.HasPrefix(existing.Version, ImporterVersionPrefix) {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s_%d", base, n)
		prior, used := c.profiles[id]
		if !used || strings.HasPrefix(prior.Version, ImporterVersionPrefix) {
			return id
		}
	}
}

// IDs returns the sorted profile ids, mostly for diagnostics and tests.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.profiles))
	for id := range c.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
