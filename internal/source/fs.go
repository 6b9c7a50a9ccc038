package source

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/keshon/lazycmd/internal/command"
)

const manifestExt = ".toml"

// FS reads manifests from a file system (an embedded tree or os.DirFS) and
// binds them to factories from a Catalog. Parsed manifests are cached per
// path until invalidated.
type FS struct {
	fsys    fs.FS
	catalog *Catalog

	mu     sync.Mutex
	parsed map[string]manifest
}

// NewFS returns a source over fsys.
func NewFS(fsys fs.FS, catalog *Catalog) *FS {
	return &FS{fsys: fsys, catalog: catalog, parsed: make(map[string]manifest)}
}

// Categories lists the top-level directories.
func (s *FS) Categories(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read command root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// List returns one locator per manifest file in category.
func (s *FS) List(ctx context.Context, category string) ([]command.Locator, error) {
	entries, err := fs.ReadDir(s.fsys, category)
	if err != nil {
		return nil, fmt.Errorf("read category %s: %w", category, err)
	}
	var out []command.Locator
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != manifestExt {
			continue
		}
		out = append(out, command.Locator{
			Category: category,
			Name:     strings.TrimSuffix(e.Name(), manifestExt),
			Path:     path.Join(category, e.Name()),
		})
	}
	return out, nil
}

// Describe reads the manifest behind loc without binding any code.
func (s *FS) Describe(ctx context.Context, loc command.Locator) (command.Metadata, error) {
	m, err := s.manifest(loc)
	if err != nil {
		return command.Metadata{}, err
	}
	return m.metadata(loc), nil
}

// Load builds a fresh implementation for loc.
func (s *FS) Load(ctx context.Context, loc command.Locator) (*command.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.manifest(loc)
	if err != nil {
		return nil, err
	}
	factory, ok := s.catalog.Lookup(m.Handler)
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnknownHandler, m.Handler, loc)
	}
	impl := factory()
	if impl == nil {
		return nil, fmt.Errorf("%w: factory %q returned nil", ErrUnknownHandler, m.Handler)
	}
	return &command.Definition{Name: m.Name, Command: impl}, nil
}

// Invalidate drops the cached manifest so the next Describe or Load re-reads it.
func (s *FS) Invalidate(loc command.Locator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parsed, s.key(loc))
}

func (s *FS) key(loc command.Locator) string {
	if loc.Path != "" {
		return loc.Path
	}
	return path.Join(loc.Category, loc.Name+manifestExt)
}

func (s *FS) manifest(loc command.Locator) (manifest, error) {
	key := s.key(loc)

	s.mu.Lock()
	m, ok := s.parsed[key]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	data, err := fs.ReadFile(s.fsys, key)
	if err != nil {
		return manifest{}, fmt.Errorf("read manifest %s: %w", key, err)
	}
	m, err = parseManifest(data)
	if err != nil {
		return manifest{}, fmt.Errorf("%s: %w", key, err)
	}

	s.mu.Lock()
	s.parsed[key] = m
	s.mu.Unlock()
	return m, nil
}
