// Package commands contains the built-in commands and their embedded manifests.
package commands

import (
	"context"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/pipeline"
	"github.com/keshon/lazycmd/internal/source"
	"github.com/keshon/lazycmd/internal/storage"
	"github.com/keshon/lazycmd/pkg/cmd"
)

//go:embed manifests
var manifests embed.FS

// Manifests returns the embedded manifest tree (<category>/<name>.toml).
func Manifests() fs.FS {
	sub, err := fs.Sub(manifests, "manifests")
	if err != nil {
		panic(err)
	}
	return sub
}

// Operator is the pipeline surface the operator commands use.
type Operator interface {
	Stats() pipeline.Stats
	Reload(ctx context.Context, name string) error
	Lookup(name string) (command.Metadata, bool)
	Commands() []command.Metadata
	Categories() []string
	ClearCooldowns(callerID string, names ...string) int
}

// Deps are the collaborators of the built-in commands.
type Deps struct {
	Operator  Operator
	Store     storage.Store
	VerifyURL string
	Prefix    string
	Started   time.Time
	// Latency reports the gateway round trip, when the gateway knows it.
	Latency func() time.Duration
	Now     func() time.Time
}

// Register adds a factory for every built-in handler key.
func Register(c *source.Catalog, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Started.IsZero() {
		d.Started = d.Now()
	}
	c.Register("help", func() cmd.Command { return newHelp(d) })
	c.Register("ping", func() cmd.Command { return newPing(d) })
	c.Register("about", func() cmd.Command { return newAbout(d) })
	c.Register("stats", func() cmd.Command { return newStats(d) })
	c.Register("reload", func() cmd.Command { return newReload(d) })
	c.Register("cooldown-reset", func() cmd.Command { return newCooldownReset(d) })
	c.Register("ban", func() cmd.Command { return newBan(d) })
	c.Register("unban", func() cmd.Command { return newUnban(d) })
	c.Register("set-level", func() cmd.Command { return newSetLevel(d) })
	c.Register("history", func() cmd.Command { return newHistory(d) })
	c.Register("roll", func() cmd.Command { return newRoll() })
	c.Register("verify", func() cmd.Command { return newVerify(d) })
	c.Register("whoami", func() cmd.Command { return &whoami{d: d} })
}

// simple is a command that runs the same handler for both invocation kinds.
type simple struct {
	name    string
	desc    string
	aliases []string
	run     cmd.HandlerFunc
}

func (s *simple) Name() string        { return s.name }
func (s *simple) Description() string { return s.desc }
func (s *simple) Aliases() []string   { return s.aliases }

func (s *simple) RunStructured(ctx context.Context, inv *cmd.Invocation) error {
	return s.run(ctx, inv)
}

func (s *simple) RunText(ctx context.Context, inv *cmd.Invocation) error {
	return s.run(ctx, inv)
}

func reply(ctx context.Context, inv *cmd.Invocation, title, content string) error {
	return inv.Respond(ctx, cmd.Response{Title: title, Content: content})
}

func replyEphemeral(ctx context.Context, inv *cmd.Invocation, title, content string) error {
	return inv.Respond(ctx, cmd.Response{Title: title, Content: content, Ephemeral: true})
}

// userID accepts a raw ID or a <@id> / <@!id> mention.
func userID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}
