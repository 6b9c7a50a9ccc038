package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/storage"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/util"
)

const dateTpl = "YYYY-MM-DD hh:mm"

func newCooldownReset(d Deps) *simple {
	return &simple{
		name: "cooldown-reset",
		desc: "Clear a user's cooldowns.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			target := userID(inv.Option("user", 0))
			if target == "" {
				return replyEphemeral(ctx, inv, "Cooldown reset", "Usage: `cooldown-reset <user> [command]`")
			}
			var names []string
			if name := inv.Option("command", 1); name != "" {
				meta, ok := d.Operator.Lookup(name)
				if !ok {
					return replyEphemeral(ctx, inv, "Cooldown reset", fmt.Sprintf("Unknown command `%s`.", name))
				}
				names = append(names, meta.Name)
			}
			n := d.Operator.ClearCooldowns(target, names...)
			return replyEphemeral(ctx, inv, "Cooldown reset", fmt.Sprintf("Cleared %d cooldown(s) for <@%s>.", n, target))
		},
	}
}

// parseBanDuration accepts Go durations, whole days ("7d") and
// "perm"/"permanent"/"0" for a permanent ban.
func parseBanDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "0", "perm", "permanent":
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil || dur < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return dur, nil
}

func newBan(d Deps) *simple {
	return &simple{
		name: "ban",
		desc: "Ban a user from running commands.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			target := userID(inv.Option("user", 0))
			if target == "" {
				return replyEphemeral(ctx, inv, "Ban", "Usage: `ban <user> [duration|perm] [reason]`")
			}
			if target == inv.CallerID {
				return replyEphemeral(ctx, inv, "Ban", "You can't ban yourself.")
			}
			dur, err := parseBanDuration(inv.Option("duration", 1))
			if err != nil {
				return replyEphemeral(ctx, inv, "Ban", err.Error())
			}
			reason := inv.Options["reason"]
			if inv.Kind == cmd.KindText {
				reason = inv.Rest(2)
			}

			now := d.Now().UTC()
			rec := storage.BanRecord{CallerID: target, Reason: reason, IssuedBy: inv.CallerID, CreatedAt: now}
			if dur > 0 {
				rec.ExpiresAt = now.Add(dur)
			}
			if err := d.Store.SetBan(ctx, rec); err != nil {
				return fmt.Errorf("ban %s: %w", target, err)
			}

			msg := fmt.Sprintf("<@%s> is banned permanently.", target)
			if dur > 0 {
				msg = fmt.Sprintf("<@%s> is banned until %s UTC.", target, util.FormatTime(rec.ExpiresAt, dateTpl))
			}
			return replyEphemeral(ctx, inv, "Ban", msg)
		},
	}
}

func newUnban(d Deps) *simple {
	return &simple{
		name: "unban",
		desc: "Lift a user's ban.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			target := userID(inv.Option("user", 0))
			if target == "" {
				return replyEphemeral(ctx, inv, "Unban", "Usage: `unban <user>`")
			}
			err := d.Store.ClearBan(ctx, target)
			if errors.Is(err, storage.ErrNotFound) {
				return replyEphemeral(ctx, inv, "Unban", fmt.Sprintf("<@%s> is not banned.", target))
			}
			if err != nil {
				return fmt.Errorf("unban %s: %w", target, err)
			}
			return replyEphemeral(ctx, inv, "Unban", fmt.Sprintf("<@%s> can run commands again.", target))
		},
	}
}

func newSetLevel(d Deps) *simple {
	return &simple{
		name: "set-level",
		desc: "Set a user's verification level.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			target := userID(inv.Option("user", 0))
			raw := inv.Option("level", 1)
			if target == "" || raw == "" {
				return replyEphemeral(ctx, inv, "Set level", "Usage: `set-level <user> <none|basic|verified>`")
			}
			level, err := command.ParseLevel(raw)
			if err != nil {
				return replyEphemeral(ctx, inv, "Set level", err.Error())
			}
			if err := d.Store.SetLevel(ctx, target, level); err != nil {
				return fmt.Errorf("set level of %s: %w", target, err)
			}
			return replyEphemeral(ctx, inv, "Set level", fmt.Sprintf("<@%s> is now **%s**.", target, level))
		},
	}
}

func newHistory(d Deps) *simple {
	return &simple{
		name: "history",
		desc: "Show the most recent command executions.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			limit := storage.HistoryLimit
			if raw := inv.Option("limit", 0); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					return replyEphemeral(ctx, inv, "History", "Limit must be a positive number.")
				}
				limit = min(n, storage.HistoryLimit)
			}
			records, err := d.Store.History(ctx, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(records) == 0 {
				return replyEphemeral(ctx, inv, "History", "No commands recorded yet.")
			}
			var sb strings.Builder
			for _, r := range records {
				fmt.Fprintf(&sb, "`%s` %s by %s (%s)\n", util.FormatTime(r.Datetime, dateTpl), r.Command, displayName(r), r.Kind)
			}
			return replyEphemeral(ctx, inv, "📜 History", strings.TrimSpace(sb.String()))
		},
	}
}

func displayName(r storage.HistoryRecord) string {
	if r.Username != "" {
		return r.Username
	}
	return r.CallerID
}
