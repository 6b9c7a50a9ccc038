package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
)

type stubCmd struct {
	name    string
	aliases []string
	gen     int
}

func (s *stubCmd) Name() string        { return s.name }
func (s *stubCmd) Description() string { return "stub" }
func (s *stubCmd) Aliases() []string   { return s.aliases }

func (s *stubCmd) RunStructured(ctx context.Context, inv *cmd.Invocation) error { return nil }
func (s *stubCmd) RunText(ctx context.Context, inv *cmd.Invocation) error       { return nil }

// fakeSource is one category "test" holding the given commands.
type fakeSource struct {
	mu          sync.Mutex
	metas       map[string]command.Metadata
	aliases     map[string][]string
	failing     map[string]bool
	loads       map[string]int
	invalidated []string
}

func newFakeSource(names ...string) *fakeSource {
	s := &fakeSource{
		metas:   make(map[string]command.Metadata),
		aliases: make(map[string][]string),
		failing: make(map[string]bool),
		loads:   make(map[string]int),
	}
	for _, n := range names {
		s.metas[n] = command.Metadata{
			Name:     n,
			Category: "test",
			Locator:  command.Locator{Category: "test", Name: n},
			Kind:     cmd.KindBoth,
			Enabled:  true,
		}
	}
	return s
}

func (s *fakeSource) Categories(ctx context.Context) ([]string, error) { return []string{"test"}, nil }

func (s *fakeSource) List(ctx context.Context, category string) ([]command.Locator, error) {
	var out []command.Locator
	for _, m := range s.metas {
		out = append(out, m.Locator)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeSource) Describe(ctx context.Context, loc command.Locator) (command.Metadata, error) {
	return s.metas[loc.Name], nil
}

func (s *fakeSource) Load(ctx context.Context, loc command.Locator) (*command.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[loc.Name] {
		return nil, errors.New("boom")
	}
	s.loads[loc.Name]++
	return &command.Definition{
		Name:    loc.Name,
		Command: &stubCmd{name: loc.Name, aliases: s.aliases[loc.Name], gen: s.loads[loc.Name]},
	}, nil
}

func (s *fakeSource) Invalidate(loc command.Locator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, loc.Name)
}

func setup(t *testing.T, src *fakeSource, opts Options) (*Cache, *command.Registry) {
	t.Helper()
	reg := command.NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Build(context.Background(), src))
	c, err := New(reg, src, opts, zerolog.Nop())
	require.NoError(t, err)
	return c, reg
}

func TestNewRejectsHotSetLargerThanCache(t *testing.T) {
	reg := command.NewRegistry(zerolog.Nop())
	_, err := New(reg, newFakeSource(), Options{MaxSize: 1, Hot: []string{"a", "b"}}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrHotSetTooLarge)

	_, err = New(reg, newFakeSource(), Options{MaxSize: 0}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPreloadHotSetLoadsOnce(t *testing.T) {
	src := newFakeSource("help", "ping", "roll")
	c, _ := setup(t, src, Options{MaxSize: 3, Hot: []string{"help", "ping"}})
	ctx := context.Background()

	require.NoError(t, c.PreloadHotSet(ctx))
	assert.True(t, c.Contains("help"))
	assert.True(t, c.Contains("ping"))

	for range 5 {
		impl, ok := c.GetOrLoad(ctx, "help")
		require.True(t, ok)
		assert.Equal(t, "help", impl.Name)
	}
	assert.Equal(t, 1, c.LoadCount("help"))
	assert.Equal(t, 1, src.loads["help"])
}

func TestPreloadHotSetUnknownCommand(t *testing.T) {
	src := newFakeSource("help")
	c, _ := setup(t, src, Options{MaxSize: 2, Hot: []string{"help", "nope"}})

	err := c.PreloadHotSet(context.Background())
	assert.ErrorIs(t, err, ErrUnknownHot)
	assert.True(t, c.Contains("help"))
}

func TestSizeNeverExceedsMax(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f"}
	src := newFakeSource(names...)
	c, _ := setup(t, src, Options{MaxSize: 3})
	ctx := context.Background()

	for i := range 20 {
		_, ok := c.GetOrLoad(ctx, names[i%len(names)])
		require.True(t, ok)
		assert.LessOrEqual(t, c.Len(), 3)
	}
}

func TestEvictionSparesHotSet(t *testing.T) {
	// cacheMaxSize = 2, hot = {a}: loading a, b, c evicts b.
	src := newFakeSource("a", "b", "c")
	c, _ := setup(t, src, Options{MaxSize: 2, Hot: []string{"a"}})
	ctx := context.Background()
	require.NoError(t, c.PreloadHotSet(ctx))

	for _, n := range []string{"a", "b", "c"} {
		_, ok := c.GetOrLoad(ctx, n)
		require.True(t, ok)
	}

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.Equal(t, 2, c.Len())
}

func TestEvictsLeastUsed(t *testing.T) {
	src := newFakeSource("a", "b", "c", "d")
	c, _ := setup(t, src, Options{MaxSize: 3})
	ctx := context.Background()

	for _, n := range []string{"a", "b", "c"} {
		_, ok := c.GetOrLoad(ctx, n)
		require.True(t, ok)
	}
	// a: 2 hits, b: 0, c: 1
	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "c")

	_, ok := c.GetOrLoad(ctx, "d")
	require.True(t, ok)
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("a"))
	assert.True(t, c.Contains("c"))
	assert.True(t, c.Contains("d"))
}

func TestEvictionIsDeterministic(t *testing.T) {
	run := func() []string {
		src := newFakeSource("a", "b", "c", "d", "e")
		c, _ := setup(t, src, Options{MaxSize: 2})
		ctx := context.Background()
		var evicted []string
		for _, n := range []string{"a", "b", "c", "d", "e"} {
			before := map[string]bool{}
			for _, e := range c.Stats() {
				before[e.Name] = true
			}
			c.GetOrLoad(ctx, n)
			for name := range before {
				if !c.Contains(name) {
					evicted = append(evicted, name)
				}
			}
		}
		return evicted
	}

	first := run()
	assert.Equal(t, []string{"a", "b", "c"}, first, "ties evict the earliest inserted entry")
	for range 5 {
		assert.Equal(t, first, run())
	}
}

func TestFullOfHotCommandsServesUncached(t *testing.T) {
	src := newFakeSource("a", "b", "c")
	c, _ := setup(t, src, Options{MaxSize: 2, Hot: []string{"a", "b"}})
	ctx := context.Background()
	require.NoError(t, c.PreloadHotSet(ctx))

	impl, ok := c.GetOrLoad(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, "c", impl.Name)
	assert.False(t, c.Contains("c"))
	assert.Equal(t, 2, c.Len())
}

func TestUnknownDisabledAndFailingCommands(t *testing.T) {
	src := newFakeSource("ok", "off", "broken")
	m := src.metas["off"]
	m.Enabled = false
	src.metas["off"] = m
	src.failing["broken"] = true

	c, _ := setup(t, src, Options{MaxSize: 4})
	ctx := context.Background()

	_, ok := c.GetOrLoad(ctx, "missing")
	assert.False(t, ok)

	_, ok = c.GetOrLoad(ctx, "off")
	assert.False(t, ok)
	assert.Zero(t, src.loads["off"])

	_, ok = c.GetOrLoad(ctx, "broken")
	assert.False(t, ok)
	assert.False(t, c.Contains("broken"))

	_, ok = c.GetOrLoad(ctx, "ok")
	assert.True(t, ok)
}

func TestFailedLoadStaysUnusableUntilReload(t *testing.T) {
	src := newFakeSource("broken")
	src.failing["broken"] = true
	c, _ := setup(t, src, Options{MaxSize: 2})
	ctx := context.Background()

	_, ok := c.GetOrLoad(ctx, "broken")
	require.False(t, ok)

	src.failing["broken"] = false
	_, ok = c.GetOrLoad(ctx, "broken")
	assert.False(t, ok)
	assert.Zero(t, src.loads["broken"], "source is not asked again")

	require.NoError(t, c.Reload(ctx, "broken"))
	impl, ok := c.GetOrLoad(ctx, "broken")
	require.True(t, ok)
	assert.Equal(t, "broken", impl.Name)
	assert.Equal(t, 1, src.loads["broken"])
}

type textOnly struct{ name string }

func (c textOnly) Name() string        { return c.name }
func (c textOnly) Description() string { return "" }
func (c textOnly) RunText(ctx context.Context, inv *cmd.Invocation) error {
	return nil
}

type kindLoader struct{ *fakeSource }

func (k kindLoader) Load(ctx context.Context, loc command.Locator) (*command.Definition, error) {
	return &command.Definition{Name: loc.Name, Command: textOnly{name: loc.Name}}, nil
}

func TestImplementationMustServeDeclaredKind(t *testing.T) {
	src := newFakeSource("both", "txt")
	m := src.metas["txt"]
	m.Kind = cmd.KindText
	src.metas["txt"] = m

	reg := command.NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Build(context.Background(), src))
	c, err := New(reg, kindLoader{src}, Options{MaxSize: 2}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.GetOrLoad(ctx, "both")
	assert.False(t, ok, "text-only implementation behind a manifest declaring both")

	impl, ok := c.GetOrLoad(ctx, "txt")
	require.True(t, ok)
	assert.Equal(t, cmd.KindText, impl.Kind)
}

func TestServes(t *testing.T) {
	assert.True(t, serves(cmd.KindBoth, cmd.KindBoth))
	assert.True(t, serves(cmd.KindBoth, cmd.KindText))
	assert.True(t, serves(cmd.KindStructured, cmd.KindStructured))
	assert.False(t, serves(cmd.KindStructured, cmd.KindBoth))
	assert.False(t, serves(cmd.KindText, cmd.KindStructured))
}

func TestAliasesMergedOnLoad(t *testing.T) {
	src := newFakeSource("roll")
	src.aliases["roll"] = []string{"R", "dice", "roll"}
	c, reg := setup(t, src, Options{MaxSize: 2})
	ctx := context.Background()

	assert.False(t, reg.Has("dice"))
	_, ok := c.GetOrLoad(ctx, "roll")
	require.True(t, ok)

	meta, ok := reg.Get("dice")
	require.True(t, ok)
	assert.Equal(t, "roll", meta.Name)
	assert.ElementsMatch(t, []string{"r", "dice"}, meta.Aliases)

	impl, ok := c.GetOrLoad(ctx, "R")
	require.True(t, ok)
	assert.Equal(t, "roll", impl.Name)
	assert.Equal(t, 1, c.LoadCount("roll"))
}

func TestReloadBuildsFreshImplementation(t *testing.T) {
	src := newFakeSource("roll")
	c, _ := setup(t, src, Options{MaxSize: 2})
	ctx := context.Background()

	first, ok := c.GetOrLoad(ctx, "roll")
	require.True(t, ok)
	require.NoError(t, c.Reload(ctx, "roll"))

	second, ok := c.GetOrLoad(ctx, "roll")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.Command.(*stubCmd).gen)
	assert.Equal(t, []string{"roll"}, src.invalidated)

	assert.ErrorIs(t, c.Reload(ctx, "nope"), command.ErrNotFound)

	src.failing["roll"] = true
	assert.ErrorIs(t, c.Reload(ctx, "roll"), ErrLoadFailed)
	assert.False(t, c.Contains("roll"))
}

func TestMiddlewareAppliedOnce(t *testing.T) {
	src := newFakeSource("ping")
	var calls []string
	mw := func(name string, next cmd.HandlerFunc) cmd.HandlerFunc {
		return func(ctx context.Context, inv *cmd.Invocation) error {
			calls = append(calls, name)
			return next(ctx, inv)
		}
	}
	c, _ := setup(t, src, Options{MaxSize: 2, Middleware: []cmd.Middleware{mw}})
	ctx := context.Background()

	for range 3 {
		impl, ok := c.GetOrLoad(ctx, "ping")
		require.True(t, ok)
		require.NoError(t, impl.Handler(cmd.KindText)(ctx, &cmd.Invocation{}))
	}
	assert.Equal(t, []string{"ping", "ping", "ping"}, calls)
}

func TestConcurrentGetOrLoad(t *testing.T) {
	var names []string
	for i := range 10 {
		names = append(names, fmt.Sprintf("c%d", i))
	}
	src := newFakeSource(names...)
	c, _ := setup(t, src, Options{MaxSize: 4, Hot: []string{"c0"}})
	ctx := context.Background()
	require.NoError(t, c.PreloadHotSet(ctx))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				c.GetOrLoad(ctx, names[(g+i)%len(names)])
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 4)
	assert.True(t, c.Contains("c0"))
}

func TestStatsSortedByUses(t *testing.T) {
	src := newFakeSource("a", "b")
	c, _ := setup(t, src, Options{MaxSize: 2, Hot: []string{"b"}})
	ctx := context.Background()
	require.NoError(t, c.PreloadHotSet(ctx))

	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "a")

	stats := c.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, EntryStat{Name: "a", Uses: 2}, stats[0])
	assert.Equal(t, EntryStat{Name: "b", Uses: 0, Hot: true}, stats[1])
}
