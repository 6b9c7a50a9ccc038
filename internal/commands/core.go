package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/util"
)

// helpMaxLength is the Discord embed description limit.
const helpMaxLength = 4096

func newHelp(d Deps) *simple {
	return &simple{
		name:    "help",
		desc:    "Show available commands, or details of one command or category.",
		aliases: []string{"h", "commands"},
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			if name := inv.Option("command", 0); name != "" {
				if meta, ok := d.Operator.Lookup(name); ok {
					return reply(ctx, inv, "Help: "+meta.Name, describe(meta))
				}
				cat := strings.ToLower(strings.TrimSpace(name))
				if slices.Contains(d.Operator.Categories(), cat) {
					return reply(ctx, inv, "Help: "+cat, buildHelpMessage(d.Operator.Commands(), []string{cat}))
				}
				return replyEphemeral(ctx, inv, "Help", fmt.Sprintf("Unknown command `%s`.", name))
			}
			return reply(ctx, inv, "📖 Available Commands", buildHelpMessage(d.Operator.Commands(), d.Operator.Categories()))
		},
	}
}

// buildHelpMessage lists enabled commands by category, falling back to names
// only and then to per-category counts when the listing is too long.
func buildHelpMessage(all []command.Metadata, categories []string) string {
	byCat := make(map[string][]command.Metadata)
	for _, m := range all {
		if !m.Enabled {
			continue
		}
		byCat[m.Category] = append(byCat[m.Category], m)
	}

	full := renderHelp(byCat, categories, func(sb *strings.Builder, list []command.Metadata) {
		for _, m := range list {
			fmt.Fprintf(sb, "`%s` - %s\n", m.Name, m.Description)
		}
	})
	if len(full) <= helpMaxLength {
		return full
	}

	compact := renderHelp(byCat, categories, func(sb *strings.Builder, list []command.Metadata) {
		for i, m := range list {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "`%s`", m.Name)
		}
		sb.WriteString("\n")
	})
	if len(compact) <= helpMaxLength || len(categories) == 1 {
		return clip(compact, helpMaxLength)
	}

	var sb strings.Builder
	for _, cat := range categories {
		if n := len(byCat[cat]); n > 0 {
			fmt.Fprintf(&sb, "**%s**: %d commands\n", cat, n)
		}
	}
	sb.WriteString("\nUse `help <category>` to list one category.")
	return clip(sb.String(), helpMaxLength)
}

func renderHelp(byCat map[string][]command.Metadata, categories []string, write func(*strings.Builder, []command.Metadata)) string {
	var sb strings.Builder
	for _, cat := range categories {
		list := byCat[cat]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "**%s**\n", cat)
		write(&sb, list)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// clip cuts s at the last line or list break that fits in limit bytes.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	const more = " …"
	cut := s[:limit-len(more)]
	if i := strings.LastIndexAny(cut, "\n,"); i > 0 {
		cut = cut[:i]
	} else {
		cut = strings.ToValidUTF8(cut, "")
	}
	return cut + more
}

func describe(m command.Metadata) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", m.Description)
	fmt.Fprintf(&sb, "**Category**: %s\n", m.Category)
	fmt.Fprintf(&sb, "**Invocation**: %s\n", m.Kind)
	if len(m.Aliases) > 0 {
		fmt.Fprintf(&sb, "**Aliases**: %s\n", strings.Join(m.Aliases, ", "))
	}
	if m.CooldownSeconds > 0 {
		fmt.Fprintf(&sb, "**Cooldown**: %s\n", util.HumanSeconds(m.CooldownSeconds))
	}
	if m.OwnerOnly {
		sb.WriteString("**Owner only**\n")
	}
	if lvl := m.RequiredLevel(); lvl > command.LevelNone {
		fmt.Fprintf(&sb, "**Requires**: %s verification\n", lvl)
	}
	return strings.TrimSpace(sb.String())
}

func newPing(d Deps) *simple {
	return &simple{
		name: "ping",
		desc: "Check that the bot is alive.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			msg := "🏓 Pong!"
			if d.Latency != nil {
				msg = fmt.Sprintf("🏓 Pong! Response time: `%dms`", d.Latency().Milliseconds())
			}
			return reply(ctx, inv, "", msg)
		},
	}
}

func newAbout(d Deps) *simple {
	return &simple{
		name: "about",
		desc: "Show build and uptime information.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			version, goVer := "devel", strings.TrimPrefix(runtime.Version(), "go")
			if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
				version = bi.Main.Version
			}
			uptime := d.Now().Sub(d.Started).Truncate(time.Second)
			body := fmt.Sprintf("**Release**: %s (Go %s)\n**Started**: %s\n**Uptime**: %s",
				version, goVer, util.FormatTime(d.Started, "YYYY-MM-DD hh:mm:ss"), uptime)
			return reply(ctx, inv, "ℹ️ About", body)
		},
	}
}

func newStats(d Deps) *simple {
	return &simple{
		name: "stats",
		desc: "Show registry, cache and cooldown statistics.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			st := d.Operator.Stats()
			var sb strings.Builder
			fmt.Fprintf(&sb, "**Registered**: %d commands in %d categories\n", st.Registered, st.Categories)
			fmt.Fprintf(&sb, "**Cache**: %d / %d\n", st.CacheSize, st.CacheMax)
			fmt.Fprintf(&sb, "**Active cooldowns**: %d\n", st.Cooldowns)
			if len(st.Jobs) > 0 {
				fmt.Fprintf(&sb, "**Jobs**: %s\n", strings.Join(st.Jobs, ", "))
			}
			if top := st.Top(10); len(top) > 0 {
				sb.WriteString("\n**Most used**\n")
				for _, e := range top {
					hot := ""
					if e.Hot {
						hot = " 🔥"
					}
					fmt.Fprintf(&sb, "`%s` %d%s\n", e.Name, e.Uses, hot)
				}
			}
			return replyEphemeral(ctx, inv, "📊 Stats", strings.TrimSpace(sb.String()))
		},
	}
}

func newReload(d Deps) *simple {
	return &simple{
		name: "reload",
		desc: "Reload a command from its source.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			name := inv.Option("command", 0)
			if name == "" {
				return replyEphemeral(ctx, inv, "Reload", "Usage: `reload <command>`")
			}
			err := d.Operator.Reload(ctx, name)
			switch {
			case err == nil:
				return replyEphemeral(ctx, inv, "Reload", fmt.Sprintf("Reloaded `%s`.", name))
			case errors.Is(err, command.ErrNotFound):
				return replyEphemeral(ctx, inv, "Reload", fmt.Sprintf("Unknown command `%s`.", name))
			case errors.Is(err, command.ErrDisabled):
				return replyEphemeral(ctx, inv, "Reload", fmt.Sprintf("`%s` is disabled and was unloaded.", name))
			default:
				return fmt.Errorf("reload %s: %w", name, err)
			}
		},
	}
}
