package app

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lazycmd/internal/config"
	"github.com/keshon/lazycmd/internal/dispatch"
	"github.com/keshon/lazycmd/pkg/cmd"
)

func testConfig(t *testing.T, driver string) *config.Config {
	return &config.Config{
		OwnerID:       "owner",
		CommandPrefix: "!",
		CacheMaxSize:  8,
		HotCommands:   []string{"help", "ping"},
		SweepInterval: time.Minute,
		StorageDriver: driver,
		StoragePath:   filepath.Join(t.TempDir(), "store"),
	}
}

type sink struct{ got []cmd.Response }

func (s *sink) Reply(_ context.Context, r cmd.Response) error {
	s.got = append(s.got, r)
	return nil
}

func (s *sink) Followup(ctx context.Context, r cmd.Response) error { return s.Reply(ctx, r) }

func TestAppServesEmbeddedCommands(t *testing.T) {
	for _, driver := range []string{config.DriverJSON, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			a, err := New(testConfig(t, driver), zerolog.Nop(), Options{
				Latency: func() time.Duration { return 42 * time.Millisecond },
			})
			require.NoError(t, err)
			require.NoError(t, a.Start(context.Background()))
			defer a.Close()

			s := &sink{}
			inv := cmd.NewInvocation(cmd.KindText, "u1", s)
			inv.Text = "!ping"
			assert.Equal(t, dispatch.Succeeded, a.Pipeline.Dispatch(context.Background(), inv))
			require.Len(t, s.got, 1)
			assert.Contains(t, s.got[0].Content, "42ms")

			history, err := a.Store.History(context.Background(), 5)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, "ping", history[0].Command)
		})
	}
}

func TestAppUsesProvidedManifests(t *testing.T) {
	cfg := testConfig(t, config.DriverJSON)
	cfg.HotCommands = []string{"roll"}
	fsys := fstest.MapFS{
		"games/roll.toml": {Data: []byte("name = \"roll\"\nkind = \"free-text\"\n")},
	}

	a, err := New(cfg, zerolog.Nop(), Options{Manifests: fsys})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	assert.Equal(t, []string{"games"}, a.Pipeline.Categories())
	_, ok := a.Pipeline.Lookup("ping")
	assert.False(t, ok)
}

func TestStartFailsOnUnknownHotCommand(t *testing.T) {
	cfg := testConfig(t, config.DriverJSON)
	cfg.HotCommands = []string{"nope"}

	a, err := New(cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.Error(t, a.Start(context.Background()))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(testConfig(t, "redis"), zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")
}
