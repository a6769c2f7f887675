package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/hddl-sim/internal/models"
)

type memoryEntry struct {
	entry   Entry
	hash    string
	updated time.Time
}

// InMemoryCatalog implements Catalog for tests and MCP sessions that run
// without a database.
type InMemoryCatalog struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewInMemoryCatalog creates an empty in-memory catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{entries: make(map[string]memoryEntry)}
}

// Register stores a clone of e.
func (c *InMemoryCatalog) Register(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	data, err := models.Marshal(e.Scenario)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Name, err)
	}

	e.Scenario = e.Scenario.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Name] = memoryEntry{entry: e, hash: contentHash(data), updated: time.Now().UTC()}
	return nil
}

// Get returns a clone of the named entry.
func (c *InMemoryCatalog) Get(ctx context.Context, name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	me, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e := me.entry
	e.Scenario = e.Scenario.Clone()
	return &e, nil
}

// List returns entries of kind, sorted by name.
func (c *InMemoryCatalog) List(ctx context.Context, kind Kind) ([]EntryInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]EntryInfo, 0, len(c.entries))
	for _, me := range c.entries {
		if kind != "" && me.entry.Kind != kind {
			continue
		}
		infos = append(infos, infoFor(me.entry, me.hash, me.updated))
	}
	slices.SortFunc(infos, func(a, b EntryInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}

// Remove deletes the named entry.
func (c *InMemoryCatalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(c.entries, name)
	return nil
}

// Clear deletes every entry.
func (c *InMemoryCatalog) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

// Close is a no-op.
func (c *InMemoryCatalog) Close() error {
	return nil
}
