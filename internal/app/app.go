// Package app assembles the service from configuration: store, command
// source, built-in commands and the pipeline. Both entrypoints use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/commands"
	"github.com/keshon/lazycmd/internal/config"
	"github.com/keshon/lazycmd/internal/middleware"
	"github.com/keshon/lazycmd/internal/pipeline"
	"github.com/keshon/lazycmd/internal/source"
	"github.com/keshon/lazycmd/internal/storage"
	"github.com/keshon/lazycmd/internal/storage/jsonstore"
	"github.com/keshon/lazycmd/internal/storage/sqlite"
	"github.com/keshon/lazycmd/pkg/cmd"
)

type Options struct {
	// Latency is passed to the ping command.
	Latency func() time.Duration
	// Manifests replaces the embedded and COMMANDS_DIR manifests.
	Manifests fs.FS
}

// App owns everything that has to be closed on shutdown.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Catalog  *source.Catalog
	Pipeline *pipeline.Pipeline
	log      zerolog.Logger
}

// New opens the store and wires the pipeline. Call Start before dispatching.
func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	store, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}

	fsys := opts.Manifests
	if fsys == nil {
		fsys = commands.Manifests()
		if cfg.CommandsDir != "" {
			fsys = os.DirFS(cfg.CommandsDir)
		}
	}

	catalog := source.NewCatalog()
	src := source.NewFS(fsys, catalog)

	p, err := pipeline.New(pipeline.Config{
		Source:        src,
		Store:         store,
		OwnerID:       cfg.OwnerID,
		VerifyURL:     cfg.VerifyURL,
		Prefix:        cfg.CommandPrefix,
		CacheMaxSize:  cfg.CacheMaxSize,
		Hot:           cfg.HotCommands,
		SweepInterval: cfg.SweepInterval,
		Middleware: []cmd.Middleware{
			middleware.WithLogging(log.With().Str("component", "exec").Logger()),
			middleware.WithHistory(store, log),
		},
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	commands.Register(catalog, commands.Deps{
		Operator:  p,
		Store:     store,
		VerifyURL: cfg.VerifyURL,
		Prefix:    cfg.CommandPrefix,
		Latency:   opts.Latency,
	})

	return &App{Config: cfg, Store: store, Catalog: catalog, Pipeline: p, log: log}, nil
}

// Start builds the registry, preloads hot commands and starts background jobs.
func (a *App) Start(ctx context.Context) error {
	return a.Pipeline.Start(ctx)
}

// Close stops background jobs and closes the store.
func (a *App) Close() error {
	a.Pipeline.Stop()
	return a.Store.Close()
}

// OpenStore opens the backend selected by STORAGE_DRIVER.
func OpenStore(cfg *config.Config, log zerolog.Logger) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverJSON, "":
		s, err := jsonstore.Open(cfg.StoragePath, log.With().Str("component", "datastore").Logger())
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		return s, nil
	}
	return nil, errors.New("unknown storage driver " + cfg.StorageDriver)
}
