package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/retrylimit"
)

const maxDescription = 100

// registerCommands syncs the guild's slash commands with the registry:
// obsolete ones are deleted, new or changed ones are created.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, err := b.dg.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list remote commands: %w", err)
	}
	remoteByName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, c := range remote {
		remoteByName[c.Name] = c
	}

	local := buildCommandDefinitions(b.p.Commands())
	hashes := b.hashes.load(guildID)

	b.deleteObsoleteCommands(ctx, appID, guildID, remoteByName, local, hashes)
	b.upsertChangedCommands(ctx, appID, guildID, remoteByName, local, hashes)

	if err := b.hashes.save(guildID, hashes); err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to save command hashes")
	}
	return nil
}

// buildCommandDefinitions returns slash definitions for every enabled command
// that accepts structured invocations.
func buildCommandDefinitions(all []command.Metadata) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, m := range all {
		if !m.Enabled || !m.Kind.Accepts(cmd.KindStructured) {
			continue
		}
		defs = append(defs, commandDefinition(m))
	}
	return defs
}

func commandDefinition(m command.Metadata) *discordgo.ApplicationCommand {
	desc := m.Description
	if desc == "" {
		desc = m.Name
	}
	def := &discordgo.ApplicationCommand{
		Name:        m.Name,
		Description: truncate(desc, maxDescription),
		Type:        discordgo.ChatApplicationCommand,
	}
	for _, o := range m.Options {
		od := o.Description
		if od == "" {
			od = o.Name
		}
		def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
			Type:        optionType(o.Type),
			Name:        o.Name,
			Description: truncate(od, maxDescription),
			Required:    o.Required,
		})
	}
	return def
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (b *Bot) deleteObsoleteCommands(ctx context.Context, appID, guildID string, remote map[string]*discordgo.ApplicationCommand, local []*discordgo.ApplicationCommand, hashes map[string]string) {
	localNames := make(map[string]struct{}, len(local))
	for _, d := range local {
		localNames[d.Name] = struct{}{}
	}
	for name, rc := range remote {
		if _, exists := localNames[name]; exists {
			continue
		}
		b.log.Info().Str("guild", guildID).Str("cmd", name).Msg("deleting obsolete slash command")
		err := b.withRetry(ctx, func() error {
			return b.dg.ApplicationCommandDelete(appID, guildID, rc.ID, discordgo.WithContext(ctx))
		})
		if err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("cmd", name).Msg("failed to delete slash command")
			continue
		}
		delete(hashes, name)
	}
}

// upsertChangedCommands creates commands that are missing remotely or whose
// hash differs from the cached value.
func (b *Bot) upsertChangedCommands(ctx context.Context, appID, guildID string, remote map[string]*discordgo.ApplicationCommand, defs []*discordgo.ApplicationCommand, hashes map[string]string) {
	for _, d := range defs {
		h := hashCommand(d)
		if _, registered := remote[d.Name]; registered && hashes[d.Name] == h {
			continue
		}
		err := b.withRetry(ctx, func() error {
			_, err := b.dg.ApplicationCommandCreate(appID, guildID, d, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("cmd", d.Name).Msg("failed to register slash command")
			continue
		}
		hashes[d.Name] = h
		b.log.Info().Str("guild", guildID).Str("cmd", d.Name).Msg("registered slash command")
	}
}

func (b *Bot) withRetry(ctx context.Context, fn func() error) error {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.Logger = b.log
	return retrylimit.WithRetryConfig(ctx, func() error { return classifyREST(fn()) }, b.limiter, cfg)
}

// restError exposes the HTTP status of a discordgo REST error to retrylimit.
type restError struct {
	err  *discordgo.RESTError
	code int
}

func (e *restError) Error() string   { return e.err.Error() }
func (e *restError) Unwrap() error   { return e.err }
func (e *restError) StatusCode() int { return e.code }

// classifyREST makes 429 and 5xx retryable and every other 4xx fatal.
func classifyREST(err error) error {
	var rest *discordgo.RESTError
	if err == nil || !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	code := rest.Response.StatusCode
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return &retrylimit.FatalError{Err: err}
	}
	return &restError{err: rest, code: code}
}

// appID returns the bot's application ID.
func (b *Bot) appID() (string, error) {
	if b.dg.State != nil && b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}
