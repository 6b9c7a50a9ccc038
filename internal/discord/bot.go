// Package discord is the Discord gateway: it turns slash-command interactions
// and prefix messages into invocations for the pipeline, and keeps the guild
// slash-command definitions in sync with the command registry.
package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/dispatch"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/retrylimit"
)

// Pipeline is what the gateway needs from the command pipeline.
type Pipeline interface {
	Dispatch(ctx context.Context, inv *cmd.Invocation) dispatch.Outcome
	Prefix() string
	Commands() []command.Metadata
}

type Config struct {
	InitSlashCommands bool
	GuildBlacklist    []string
	// HashDir holds the per-guild slash definition hashes.
	HashDir string
	// SyncWorkers bounds concurrent guild registrations.
	SyncWorkers int
}

// Bot is a Discord bot.
type Bot struct {
	dg      *discordgo.Session
	p       Pipeline
	cfg     Config
	hashes  *hashStore
	limiter *retrylimit.AdaptiveLimiter
	syncs   *workerpool.WorkerPool
	log     zerolog.Logger
	ctx     context.Context
}

// NewSession creates a session with the intents the gateway needs.
func NewSession(token string) (*discordgo.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return dg, nil
}

func New(dg *discordgo.Session, p Pipeline, cfg Config, log zerolog.Logger) *Bot {
	if cfg.HashDir == "" {
		cfg.HashDir = "data/commands"
	}
	if cfg.SyncWorkers <= 0 {
		cfg.SyncWorkers = 2
	}
	return &Bot{
		dg:      dg,
		p:       p,
		cfg:     cfg,
		hashes:  &hashStore{dir: cfg.HashDir},
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		syncs:   workerpool.New(cfg.SyncWorkers),
		log:     log,
		ctx:     context.Background(),
	}
}

// Run opens the session and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	defer b.syncs.StopWait()
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onMessageCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return guildID != "" && slices.Contains(b.cfg.GuildBlacklist, guildID)
}

// leaveIfBlacklisted leaves a blacklisted guild and reports whether it did.
func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID, name string) bool {
	if !b.isGuildBlacklisted(guildID) {
		return false
	}
	b.log.Info().Str("guild", guildID).Str("name", name).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
	return true
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if b.leaveIfBlacklisted(s, g.ID, g.Name) {
			continue
		}
		b.syncGuild(g.ID)
	}
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.ID, g.Name) {
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
	b.syncGuild(g.ID)
}

func (b *Bot) syncGuild(guildID string) {
	if !b.cfg.InitSlashCommands {
		b.log.Debug().Str("guild", guildID).Msg("slash command registration skipped")
		return
	}
	b.syncs.Submit(func() {
		if err := b.registerCommands(b.ctx, guildID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Msg("failed to register slash commands")
		}
	})
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || b.isGuildBlacklisted(i.GuildID) {
		return
	}
	data := i.ApplicationCommandData()
	if data.CommandType != discordgo.ChatApplicationCommand {
		return
	}
	user := interactionUser(i)
	if user == nil {
		return
	}

	inv := cmd.NewInvocation(cmd.KindStructured, user.ID, &interactionResponder{s: s, i: i.Interaction})
	inv.Name = data.Name
	inv.Username = user.Username
	inv.GuildID = i.GuildID
	inv.ChannelID = i.ChannelID
	inv.Options = flattenOptions(data.Options)

	b.p.Dispatch(b.ctx, inv)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || b.isGuildBlacklisted(m.GuildID) {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if !strings.HasPrefix(m.Content, b.p.Prefix()) {
		return
	}

	inv := cmd.NewInvocation(cmd.KindText, m.Author.ID, &messageResponder{s: s, m: m.Message})
	inv.Text = m.Content
	inv.Username = m.Author.Username
	inv.GuildID = m.GuildID
	inv.ChannelID = m.ChannelID

	b.p.Dispatch(b.ctx, inv)
}

// interactionUser returns the member user in guilds and the user in DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
