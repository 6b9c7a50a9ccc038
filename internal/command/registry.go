package command

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/pkg/util"
)

// Lister is the read-only part of a command source the registry needs: it
// enumerates locators and describes them without loading any code.
type Lister interface {
	Categories(ctx context.Context) ([]string, error)
	List(ctx context.Context, category string) ([]Locator, error)
	Describe(ctx context.Context, loc Locator) (Metadata, error)
}

// Registry is the catalog of every known command, keyed by name and by alias.
// Entries never change after Build except for aliases merged on first load.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Metadata
	aliases map[string]string
	log     zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byName:  make(map[string]*Metadata),
		aliases: make(map[string]string),
		log:     log,
	}
}

// Build scans the source once. A category or manifest that cannot be read is
// logged and skipped; only an unreadable source root or a cancelled ctx fails
// the build, and a failed build registers nothing.
func (r *Registry) Build(ctx context.Context, src Lister) error {
	categories, err := src.Categories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	sort.Strings(categories)

	found := make([][]Metadata, len(categories))
	idx := make([]int, len(categories))
	for i := range idx {
		idx[i] = i
	}
	err = util.Parallel(ctx, idx, 4, func(ctx context.Context, i int) error {
		found[i] = r.describeCategory(ctx, src, categories[i])
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("scan categories: %w", err)
	}

	for _, metas := range found {
		for _, m := range metas {
			r.add(m)
		}
	}
	r.log.Info().Int("commands", r.Len()).Int("categories", len(categories)).Msg("command registry built")
	return nil
}

func (r *Registry) describeCategory(ctx context.Context, src Lister, category string) []Metadata {
	locs, err := src.List(ctx, category)
	if err != nil {
		r.log.Error().Err(err).Str("category", category).Msg("skipping unreadable category")
		return nil
	}
	out := make([]Metadata, 0, len(locs))
	for _, loc := range locs {
		m, err := src.Describe(ctx, loc)
		if err != nil {
			r.log.Error().Err(err).Str("locator", loc.String()).Msg("skipping unreadable command")
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) add(m Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.Name = normalize(m.Name)
	if m.Name == "" {
		r.log.Warn().Str("locator", m.Locator.String()).Msg("command without a name ignored")
		return
	}
	if r.taken(m.Name) {
		r.log.Warn().Str("cmd", m.Name).Str("locator", m.Locator.String()).Msg("duplicate command name ignored")
		return
	}
	aliases := m.Aliases
	m.Aliases = nil
	meta := &m
	r.byName[m.Name] = meta
	r.addAliasesLocked(meta, aliases)
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.byName[name]; ok {
		return true
	}
	_, ok := r.aliases[name]
	return ok
}

func (r *Registry) addAliasesLocked(meta *Metadata, aliases []string) {
	for _, a := range aliases {
		a = normalize(a)
		if a == "" || a == meta.Name || slices.Contains(meta.Aliases, a) {
			continue
		}
		if r.taken(a) {
			r.log.Warn().Str("cmd", meta.Name).Str("alias", a).Msg("alias already taken")
			continue
		}
		r.aliases[a] = meta.Name
		meta.Aliases = append(meta.Aliases, a)
	}
}

// AddAliases merges aliases discovered on load into the catalog. Each alias
// resolves to the same metadata as name.
func (r *Registry) AddAliases(name string, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.byName[normalize(name)]
	if !ok {
		return
	}
	r.addAliasesLocked(meta, aliases)
}

// Has reports whether name or alias is known.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get returns the metadata for a name or alias, case-insensitively.
func (r *Registry) Get(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := normalize(name)
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	m, ok := r.byName[key]
	if !ok {
		return Metadata{}, false
	}
	return clone(m), true
}

// ByCategory returns the commands of a category sorted by name.
func (r *Registry) ByCategory(category string) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Metadata
	for _, m := range r.byName {
		if m.Category == category {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Categories returns every category that has at least one command.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, m := range r.byName {
		seen[m.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// All returns every command sorted by name.
func (r *Registry) All() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of commands (aliases not counted).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func clone(m *Metadata) Metadata {
	c := *m
	c.Aliases = slices.Clone(m.Aliases)
	c.Options = slices.Clone(m.Options)
	return c
}
