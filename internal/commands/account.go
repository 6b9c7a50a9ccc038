package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
)

func newVerify(d Deps) *simple {
	return &simple{
		name: "verify",
		desc: "Show your verification level and how to raise it.",
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			if err := d.Store.EnsureRegistered(ctx, inv.CallerID); err != nil {
				return fmt.Errorf("register %s: %w", inv.CallerID, err)
			}
			level, err := d.Store.Level(ctx, inv.CallerID)
			if err != nil {
				return fmt.Errorf("level of %s: %w", inv.CallerID, err)
			}
			msg := fmt.Sprintf("Your verification level is **%s**.", level)
			if level < command.LevelVerified && d.VerifyURL != "" {
				msg += fmt.Sprintf("\nVerify here to unlock more commands: %s", d.VerifyURL)
			}
			return replyEphemeral(ctx, inv, "🔐 Verification", msg)
		},
	}
}

// whoami only answers structured invocations.
type whoami struct {
	d Deps
}

func (w *whoami) Name() string        { return "whoami" }
func (w *whoami) Description() string { return "Show your account record." }

func (w *whoami) RunStructured(ctx context.Context, inv *cmd.Invocation) error {
	level, err := w.d.Store.Level(ctx, inv.CallerID)
	if err != nil {
		return fmt.Errorf("level of %s: %w", inv.CallerID, err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**ID**: %s\n", inv.CallerID)
	if inv.Username != "" {
		fmt.Fprintf(&sb, "**Name**: %s\n", inv.Username)
	}
	fmt.Fprintf(&sb, "**Verification**: %s\n", level)
	if inv.GuildID != "" {
		fmt.Fprintf(&sb, "**Guild**: %s\n", inv.GuildID)
	}
	return replyEphemeral(ctx, inv, "👤 Who am I", strings.TrimSpace(sb.String()))
}
