package source

import (
	"sort"
	"sync"

	"github.com/keshon/lazycmd/pkg/cmd"
)

// Factory builds a new implementation each time a command is loaded.
type Factory func() cmd.Command

// Catalog maps manifest handler keys to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for key.
func (c *Catalog) Register(key string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[key] = f
}

// Lookup returns the factory for key.
func (c *Catalog) Lookup(key string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[key]
	return f, ok
}

// Keys returns the registered handler keys, sorted.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
