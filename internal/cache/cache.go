// Package cache keeps command implementations resident on demand. The cache is
// bounded: a fixed hot set is always resident, and when the cache is full the
// least-used other entry is evicted to make room.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
)

var (
	ErrHotSetTooLarge = errors.New("hot set larger than cache")
	ErrUnknownHot     = errors.New("hot command not registered")
	ErrLoadFailed     = errors.New("command could not be loaded")
)

// Loader is the part of the command source the cache depends on.
type Loader interface {
	Load(ctx context.Context, loc command.Locator) (*command.Definition, error)
	Invalidate(loc command.Locator)
}

// Options configures a Cache.
type Options struct {
	MaxSize int
	Hot     []string
	// Middleware wraps every loaded handler once, at load time.
	Middleware []cmd.Middleware
}

type entry struct {
	impl *command.Implementation
	uses int64
}

// Cache is the lazy loader. All map access happens under mu; loading from the
// source never does.
type Cache struct {
	registry *command.Registry
	loader   Loader
	max      int
	hot      map[string]struct{}
	hotNames []string
	mws      []cmd.Middleware
	log      zerolog.Logger

	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	loads     map[string]int
	failed    map[string]struct{}
	preloaded bool
}

// New validates the configuration and returns an empty cache.
func New(reg *command.Registry, loader Loader, opts Options, log zerolog.Logger) (*Cache, error) {
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("cache max size must be positive, got %d", opts.MaxSize)
	}
	hot := make(map[string]struct{}, len(opts.Hot))
	var names []string
	for _, h := range opts.Hot {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := hot[h]; dup {
			continue
		}
		hot[h] = struct{}{}
		names = append(names, h)
	}
	if len(hot) > opts.MaxSize {
		return nil, fmt.Errorf("%w: %d hot commands, max size %d", ErrHotSetTooLarge, len(hot), opts.MaxSize)
	}
	return &Cache{
		registry: reg,
		loader:   loader,
		max:      opts.MaxSize,
		hot:      hot,
		hotNames: names,
		mws:      opts.Middleware,
		log:      log,
		entries:  make(map[string]*entry),
		loads:    make(map[string]int),
		failed:   make(map[string]struct{}),
	}, nil
}

// GetOrLoad returns the resident implementation of name (or alias), loading it
// from the source on a miss. It returns false when the command is unknown,
// disabled or failed to load. A failed command stays unusable until Reload.
func (c *Cache) GetOrLoad(ctx context.Context, name string) (*command.Implementation, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	meta, known := c.registry.Get(key)
	if known {
		key = meta.Name
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.uses++
		impl := e.impl
		c.mu.Unlock()
		return impl, true
	}
	_, failed := c.failed[key]
	c.mu.Unlock()

	if !known || failed {
		return nil, false
	}
	if !meta.Enabled {
		c.log.Debug().Str("cmd", meta.Name).Msg("command disabled, not loading")
		return nil, false
	}

	impl, err := c.load(ctx, meta)
	if err != nil {
		c.log.Error().Err(err).Str("cmd", meta.Name).Str("locator", meta.Locator.String()).Msg("failed to load command")
		c.mu.Lock()
		c.failed[meta.Name] = struct{}{}
		c.mu.Unlock()
		return nil, false
	}
	c.registry.AddAliases(meta.Name, impl.Aliases...)
	c.insert(meta.Name, impl)
	return impl, true
}

func (c *Cache) load(ctx context.Context, meta command.Metadata) (*command.Implementation, error) {
	def, err := c.loader.Load(ctx, meta.Locator)
	if err != nil {
		return nil, err
	}
	if def == nil || def.Command == nil {
		return nil, fmt.Errorf("source returned no implementation")
	}
	c.mu.Lock()
	c.loads[meta.Name]++
	c.mu.Unlock()

	impl := command.Classify(def)
	if impl.Kind == cmd.KindUnknown {
		return nil, fmt.Errorf("implementation of %s has no handlers", meta.Name)
	}
	if !serves(impl.Kind, meta.Kind) {
		return nil, fmt.Errorf("implementation of %s is %s, manifest declares %s", meta.Name, impl.Kind, meta.Kind)
	}
	impl.Name = meta.Name
	impl.Structured = cmd.Apply(meta.Name, impl.Structured, c.mws...)
	impl.Text = cmd.Apply(meta.Name, impl.Text, c.mws...)
	return impl, nil
}

// serves reports whether an implementation of kind impl handles every
// invocation kind the manifest declares.
func serves(impl, declared cmd.Kind) bool {
	if declared == cmd.KindBoth {
		return impl == cmd.KindBoth
	}
	return impl.Accepts(declared)
}

func (c *Cache) insert(name string, impl *command.Implementation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		// Two concurrent misses for the same command: the later load wins.
		c.entries[name] = &entry{impl: impl}
		return
	}
	if len(c.entries) >= c.max {
		victim, ok := c.victimLocked()
		if !ok {
			c.log.Warn().Str("cmd", name).Msg("cache full of hot commands, serving without caching")
			return
		}
		c.removeLocked(victim)
		c.log.Debug().Str("evicted", victim).Str("cmd", name).Msg("cache eviction")
	}
	c.entries[name] = &entry{impl: impl}
	c.order = append(c.order, name)
	c.checkLocked()
}

// victimLocked picks the non-hot entry with the fewest uses. Ties go to the
// entry inserted first, so identical call histories evict identical names.
func (c *Cache) victimLocked() (string, bool) {
	victim := ""
	var best int64
	for _, name := range c.order {
		if _, hot := c.hot[name]; hot {
			continue
		}
		e := c.entries[name]
		if victim == "" || e.uses < best {
			victim, best = name, e.uses
		}
	}
	return victim, victim != ""
}

func (c *Cache) removeLocked(name string) {
	delete(c.entries, name)
	if i := slices.Index(c.order, name); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// checkLocked logs broken invariants. They are unreachable unless the cache
// itself has a bug.
func (c *Cache) checkLocked() {
	if len(c.entries) > c.max {
		c.log.Error().Int("size", len(c.entries)).Int("max", c.max).Msg("cache invariant breach: size exceeds max")
	}
	if !c.preloaded {
		return
	}
	for _, h := range c.hotNames {
		if _, ok := c.entries[h]; !ok {
			c.log.Error().Str("cmd", h).Msg("cache invariant breach: hot command not resident")
		}
	}
}

// PreloadHotSet loads every hot command before the first invocation. Unknown
// hot names are a configuration error; load failures are logged.
func (c *Cache) PreloadHotSet(ctx context.Context) error {
	var errs []error
	for _, name := range c.hotNames {
		if !c.registry.Has(name) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownHot, name))
			continue
		}
		if _, ok := c.GetOrLoad(ctx, name); !ok {
			c.log.Error().Str("cmd", name).Msg("hot command failed to preload")
		}
	}
	c.mu.Lock()
	c.preloaded = true
	c.checkLocked()
	c.mu.Unlock()
	return errors.Join(errs...)
}

// Reload evicts name, invalidates its source cache and loads it again. It is
// best effort: invocations already holding the old implementation finish with it.
func (c *Cache) Reload(ctx context.Context, name string) error {
	meta, ok := c.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", command.ErrNotFound, name)
	}
	c.mu.Lock()
	c.removeLocked(meta.Name)
	delete(c.failed, meta.Name)
	c.mu.Unlock()

	c.loader.Invalidate(meta.Locator)

	if !meta.Enabled {
		return fmt.Errorf("%w: %s", command.ErrDisabled, meta.Name)
	}
	if _, ok := c.GetOrLoad(ctx, meta.Name); !ok {
		return fmt.Errorf("%w: %s", ErrLoadFailed, meta.Name)
	}
	c.log.Info().Str("cmd", meta.Name).Msg("command reloaded")
	return nil
}

// Contains reports whether name is resident.
func (c *Cache) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[strings.ToLower(name)]
	return ok
}

// Len returns the number of resident commands.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the configured bound.
func (c *Cache) MaxSize() int { return c.max }

// LoadCount returns how many times name was loaded from the source.
func (c *Cache) LoadCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads[strings.ToLower(name)]
}

// EntryStat describes one resident command.
type EntryStat struct {
	Name string
	Uses int64
	Hot  bool
}

// Stats returns the resident commands, most used first.
func (c *Cache) Stats() []EntryStat {
	c.mu.Lock()
	out := make([]EntryStat, 0, len(c.entries))
	for _, name := range c.order {
		_, hot := c.hot[name]
		out = append(out, EntryStat{Name: name, Uses: c.entries[name].uses, Hot: hot})
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Uses > out[j].Uses })
	return out
}
