// Package pipeline assembles the command pipeline (registry, lazy cache,
// cooldown tracker, authorization gate and dispatcher) into one handle that
// gateways dispatch through and operators inspect.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/cache"
	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/cooldown"
	"github.com/keshon/lazycmd/internal/dispatch"
	"github.com/keshon/lazycmd/internal/gate"
	"github.com/keshon/lazycmd/internal/source"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/jobmgr"
)

const sweepJob = "cooldown-sweep"

// Store is what the gate needs from persistence.
type Store interface {
	gate.BanStore
	gate.VerificationStore
}

// Config configures a Pipeline.
type Config struct {
	Source        source.Source
	Store         Store
	OwnerID       string
	VerifyURL     string
	Prefix        string
	CacheMaxSize  int
	Hot           []string
	SweepInterval time.Duration
	Middleware    []cmd.Middleware
	// Now overrides the clock of the gate and the cooldown tracker.
	Now func() time.Time
}

// Pipeline is the single handle passed to gateways and built-in commands.
type Pipeline struct {
	registry   *command.Registry
	cache      *cache.Cache
	cooldowns  *cooldown.Tracker
	gate       *gate.Gate
	dispatcher *dispatch.Dispatcher
	jobs       *jobmgr.Manager
	src        source.Source
	interval   time.Duration
	log        zerolog.Logger
}

// New wires the components. Nothing is scanned or loaded until Start.
func New(cfg Config, log zerolog.Logger) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}

	var opts []cooldown.Option
	if cfg.Now != nil {
		opts = append(opts, cooldown.WithClock(cfg.Now))
	}
	tracker := cooldown.New(log.With().Str("component", "cooldown").Logger(), opts...)

	reg := command.NewRegistry(log.With().Str("component", "registry").Logger())
	c, err := cache.New(reg, cfg.Source, cache.Options{
		MaxSize:    cfg.CacheMaxSize,
		Hot:        cfg.Hot,
		Middleware: cfg.Middleware,
	}, log.With().Str("component", "cache").Logger())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	g := gate.New(gate.Config{
		Bans:         cfg.Store,
		Verification: cfg.Store,
		Cooldowns:    tracker,
		OwnerID:      cfg.OwnerID,
		VerifyURL:    cfg.VerifyURL,
		Now:          cfg.Now,
	}, log.With().Str("component", "gate").Logger())

	d := dispatch.New(dispatch.Config{
		Catalog:   reg,
		Loader:    c,
		Gate:      g,
		Cooldowns: tracker,
		Prefix:    cfg.Prefix,
	}, log.With().Str("component", "dispatch").Logger())

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = cooldown.DefaultSweepInterval
	}

	jobLog := log.With().Str("component", "jobs").Logger()
	return &Pipeline{
		registry:   reg,
		cache:      c,
		cooldowns:  tracker,
		gate:       g,
		dispatcher: d,
		jobs: jobmgr.NewManager(func(ev jobmgr.Event) {
			if ev.Err != nil {
				jobLog.Error().Err(ev.Err).Str("job", ev.Job).Msg(ev.State)
				return
			}
			jobLog.Debug().Str("job", ev.Job).Msg(ev.State)
		}),
		src:      cfg.Source,
		interval: interval,
		log:      log,
	}, nil
}

// Start builds the registry, preloads the hot set and starts the cooldown
// sweep. Unknown hot commands fail Start.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.registry.Build(ctx, p.src); err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	p.log.Info().Int("commands", p.registry.Len()).Strs("categories", p.registry.Categories()).Msg("registry built")

	if err := p.cache.PreloadHotSet(ctx); err != nil {
		return fmt.Errorf("preload hot set: %w", err)
	}

	interval := p.interval
	if err := p.jobs.StartAsync(ctx, sweepJob, func(ctx context.Context) error {
		return p.cooldowns.Run(ctx, interval)
	}); err != nil {
		return err
	}
	return nil
}

// Stop halts background jobs.
func (p *Pipeline) Stop() {
	p.jobs.StopAll()
}

// Dispatch runs one invocation through the pipeline.
func (p *Pipeline) Dispatch(ctx context.Context, inv *cmd.Invocation) dispatch.Outcome {
	return p.dispatcher.Dispatch(ctx, inv)
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() zerolog.Logger { return p.log }

// Prefix returns the free-text command prefix.
func (p *Pipeline) Prefix() string { return p.dispatcher.Prefix() }

// Reload replaces the resident implementation of name with a fresh load.
func (p *Pipeline) Reload(ctx context.Context, name string) error {
	return p.cache.Reload(ctx, name)
}

// Lookup returns the metadata of a command by name or alias.
func (p *Pipeline) Lookup(name string) (command.Metadata, bool) {
	return p.registry.Get(name)
}

// Commands returns every registered command sorted by name.
func (p *Pipeline) Commands() []command.Metadata {
	return p.registry.All()
}

// Categories returns the registered categories, sorted.
func (p *Pipeline) Categories() []string {
	return p.registry.Categories()
}

// ClearCooldowns removes the caller's cooldown on names, or all of them.
func (p *Pipeline) ClearCooldowns(callerID string, names ...string) int {
	return p.cooldowns.Clear(callerID, names...)
}

// IsOwner reports whether callerID is the configured owner.
func (p *Pipeline) IsOwner(callerID string) bool {
	return p.gate.IsOwner(callerID)
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Registered int
	Categories int
	CacheSize  int
	CacheMax   int
	Cooldowns  int
	Entries    []cache.EntryStat
	Jobs       []string
}

// Stats reports registry size, cache occupancy and per-command use counts.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Registered: p.registry.Len(),
		Categories: len(p.registry.Categories()),
		CacheSize:  p.cache.Len(),
		CacheMax:   p.cache.MaxSize(),
		Cooldowns:  p.cooldowns.Len(),
		Entries:    p.cache.Stats(),
		Jobs:       p.jobs.List(),
	}
}

// Top returns at most n of the most used resident commands.
func (s Stats) Top(n int) []cache.EntryStat {
	if n < 0 || n >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:n]
}
