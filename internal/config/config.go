// Package config loads the service configuration from the environment, after
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	OwnerID      string `env:"OWNER_ID"`

	CommandPrefix string   `env:"COMMAND_PREFIX" envDefault:"!"`
	CacheMaxSize  int      `env:"CACHE_MAX_SIZE" envDefault:"32"`
	HotCommands   []string `env:"HOT_COMMANDS" envDefault:"help,ping" envSeparator:","`
	// CommandsDir overrides the embedded command manifests.
	CommandsDir   string        `env:"COMMANDS_DIR"`
	SweepInterval time.Duration `env:"COOLDOWN_SWEEP_INTERVAL" envDefault:"5m"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string `env:"STORAGE_PATH"`
	VerifyURL     string `env:"VERIFY_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	InitSlashCommands bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	GuildBlacklist    []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	SyncWorkers       int      `env:"SLASH_SYNC_WORKERS" envDefault:"2"`
}

// Load reads .env files (missing ones are fine) and parses the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Existing environment variables win over the file.
		_ = godotenv.Load(f)
	}
	return Parse()
}

// Parse parses the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	if c.StoragePath == "" {
		switch c.StorageDriver {
		case DriverSQLite:
			c.StoragePath = "lazycmd.db"
		default:
			c.StoragePath = "datastore.json"
		}
	}
	c.HotCommands = cleanList(c.HotCommands, true)
	c.GuildBlacklist = cleanList(c.GuildBlacklist, false)
}

// Validate checks values that have no sensible fallback. The bot token is
// checked by the Discord entrypoint, not here, so the CLI runs without one.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CommandPrefix) == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be empty"))
	}
	if c.CacheMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_SIZE must be positive, got %d", c.CacheMaxSize))
	}
	if len(c.HotCommands) > c.CacheMaxSize {
		errs = append(errs, fmt.Errorf("HOT_COMMANDS has %d entries, more than CACHE_MAX_SIZE (%d)", len(c.HotCommands), c.CacheMaxSize))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("COOLDOWN_SWEEP_INTERVAL must be positive"))
	}
	switch c.StorageDriver {
	case DriverJSON, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	return errors.Join(errs...)
}

func cleanList(in []string, lower bool) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
