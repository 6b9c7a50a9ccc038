// Command discord runs the command pipeline as a Discord bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/lazycmd/internal/app"
	"github.com/keshon/lazycmd/internal/config"
	"github.com/keshon/lazycmd/internal/discord"
	"github.com/keshon/lazycmd/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log, _ := logging.New(logging.Options{})
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	log, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Error().Err(err).Msg("cannot create discord session")
		return 1
	}

	a, err := app.New(cfg, log, app.Options{Latency: dg.HeartbeatLatency})
	if err != nil {
		log.Error().Err(err).Msg("cannot assemble service")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	if err := a.Start(ctx); err != nil {
		log.Error().Err(err).Msg("cannot start pipeline")
		return 1
	}

	bot := discord.New(dg, a.Pipeline, discord.Config{
		InitSlashCommands: cfg.InitSlashCommands,
		GuildBlacklist:    cfg.GuildBlacklist,
		SyncWorkers:       cfg.SyncWorkers,
	}, log.With().Str("component", "discord").Logger())

	log.Info().Str("prefix", cfg.CommandPrefix).Str("storage", cfg.StorageDriver).Msg("starting discord bot")
	if err := bot.Run(ctx); err != nil {
		log.Error().Err(err).Msg("discord bot error")
		return 1
	}
	log.Info().Msg("discord bot exited cleanly")
	return 0
}
