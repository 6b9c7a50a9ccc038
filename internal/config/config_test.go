package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 32, cfg.CacheMaxSize)
	assert.Equal(t, []string{"help", "ping"}, cfg.HotCommands)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, DriverJSON, cfg.StorageDriver)
	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.True(t, cfg.InitSlashCommands)
	assert.Equal(t, 2, cfg.SyncWorkers)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("CACHE_MAX_SIZE", "4")
	t.Setenv("HOT_COMMANDS", " Help , ping,help,, ")
	t.Setenv("COOLDOWN_SWEEP_INTERVAL", "30s")
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "1, 2 ,")
	t.Setenv("INIT_SLASH_COMMANDS", "false")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, 4, cfg.CacheMaxSize)
	assert.Equal(t, []string{"help", "ping"}, cfg.HotCommands)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "lazycmd.db", cfg.StoragePath)
	assert.False(t, cfg.InitSlashCommands)
	assert.Contains(t, cfg.GuildBlacklist, "2")
	assert.NotContains(t, cfg.GuildBlacklist, "3")
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		env  map[string]string
		want string
	}{
		"hot set larger than cache": {
			env:  map[string]string{"CACHE_MAX_SIZE": "1", "HOT_COMMANDS": "help,ping"},
			want: "more than CACHE_MAX_SIZE",
		},
		"non-positive cache": {
			env:  map[string]string{"CACHE_MAX_SIZE": "0"},
			want: "CACHE_MAX_SIZE must be positive",
		},
		"unknown driver": {
			env:  map[string]string{"STORAGE_DRIVER": "redis"},
			want: "unknown STORAGE_DRIVER",
		},
		"zero sweep": {
			env:  map[string]string{"COOLDOWN_SWEEP_INTERVAL": "0s"},
			want: "COOLDOWN_SWEEP_INTERVAL",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("OWNER_ID=42\nCOMMAND_PREFIX=?\n"), 0o644))
	t.Setenv("OWNER_ID", "")
	t.Setenv("COMMAND_PREFIX", "!")
	// godotenv does not override variables that are set, even to "".
	require.NoError(t, os.Unsetenv("OWNER_ID"))
	require.NoError(t, os.Unsetenv("COMMAND_PREFIX"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.OwnerID)
	assert.Equal(t, "?", cfg.CommandPrefix)
}
