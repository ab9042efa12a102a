// Package catalog holds the in-memory registry of reference entries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/storage"
)

// ErrDuplicateEntry is returned when an entry ID is already registered.
var ErrDuplicateEntry = errors.New("duplicate catalog entry")

// Catalog maps entry IDs to their features. Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*models.CatalogEntry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]*models.CatalogEntry)}
}

// Add registers e. It fails with ErrDuplicateEntry if the ID is taken.
func (c *Catalog) Add(e *models.CatalogEntry) error {
	if e == nil || e.ID == "" {
		return errors.New("catalog entry has no id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
	}
	c.entries[e.ID] = e
	return nil
}

// Put registers e, replacing any entry with the same ID.
func (c *Catalog) Put(e *models.CatalogEntry) {
	c.mu.Lock()
	c.entries[e.ID] = e
	c.mu.Unlock()
}

func (c *Catalog) Get(id string) (*models.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of all entries sorted by ID.
func (c *Catalog) Entries() []*models.CatalogEntry {
	c.mu.RLock()
	out := make([]*models.CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all entry IDs sorted.
func (c *Catalog) IDs() []string {
	entries := c.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Load reads every entry from store into a new catalog.
func Load(ctx context.Context, store storage.Storage, policy string) (*Catalog, error) {
	c := New()
	if _, err := c.LoadFrom(ctx, store, policy); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFrom reads every entry from store into c and returns how many were read.
// policy decides what happens when an ID appears twice in the store or is
// already registered: config.DuplicateError fails the load without modifying
// c, config.DuplicateLastWins keeps the row written last.
func (c *Catalog) LoadFrom(ctx context.Context, store storage.Storage, policy string) (int, error) {
	switch policy {
	case config.DuplicateError, config.DuplicateLastWins, "":
	default:
		return 0, fmt.Errorf("unknown duplicate policy: %s", policy)
	}
	entries, err := store.ReadAll(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if policy != config.DuplicateLastWins {
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			_, registered := c.entries[e.ID]
			if registered || seen[e.ID] {
				return 0, fmt.Errorf("load %s: %w: %s", store.Path(), ErrDuplicateEntry, e.ID)
			}
			seen[e.ID] = true
		}
	}
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	return len(entries), nil
}
