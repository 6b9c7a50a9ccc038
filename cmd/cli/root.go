package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keshon/lazycmd/internal/app"
	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/config"
	"github.com/keshon/lazycmd/internal/console"
	"github.com/keshon/lazycmd/internal/logging"
)

type rootOptions struct {
	envFile  string
	caller   string
	username string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lazycmd",
		Short:         "Run the command pipeline from a terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `lazycmd assembles the same pipeline the Discord bot uses (registry, lazy
cache, cooldowns, authorization gate) and drives it from the terminal.

Examples:
  lazycmd catalog                 List every registered command
  lazycmd invoke '!roll 2d6+3'    Dispatch one free-text invocation
  lazycmd invoke '/help command=roll'
  lazycmd console                 Interactive session`,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file to load before the environment")
	root.PersistentFlags().StringVar(&opts.caller, "as", "", "caller ID (default OWNER_ID, or \"console\")")
	root.PersistentFlags().StringVar(&opts.username, "name", "console", "caller display name")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(newCatalogCmd(opts), newStatsCmd(opts), newInvokeCmd(opts), newConsoleCmd(opts))
	return root
}

// session is a started app plus its logger teardown.
type session struct {
	app      *app.App
	callerID string
	closeLog func() error
}

func (s *session) Close() {
	_ = s.app.Close()
	_ = s.closeLog()
}

func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	log, closeLog := logging.New(logging.Options{Level: level, File: cfg.LogFile, Out: stderr})

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		_ = closeLog()
		return nil, err
	}

	caller := o.caller
	if caller == "" {
		caller = cfg.OwnerID
	}
	if caller == "" {
		caller = "console"
	}
	return &session{app: a, callerID: caller, closeLog: closeLog}, nil
}

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List registered commands",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := opts.open(c.Context(), c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tNAME\tKIND\tCOOLDOWN\tACCESS\tDESCRIPTION")
			for _, m := range s.app.Pipeline.Commands() {
				var access []string
				if !m.Enabled {
					access = append(access, "disabled")
				}
				if m.OwnerOnly {
					access = append(access, "owner")
				}
				if lvl := m.RequiredLevel(); lvl > command.LevelNone {
					access = append(access, lvl.String())
				}
				if len(access) == 0 {
					access = append(access, "-")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\t%s\n",
					m.Category, m.Name, m.Kind, m.CooldownSeconds, strings.Join(access, ","), m.Description)
			}
			return w.Flush()
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry and cache statistics after startup",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := opts.open(c.Context(), c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.app.Pipeline.Stats()
			out := c.OutOrStdout()
			fmt.Fprintf(out, "registered: %d commands in %d categories\n", st.Registered, st.Categories)
			fmt.Fprintf(out, "cache:      %d / %d\n", st.CacheSize, st.CacheMax)
			for _, e := range st.Entries {
				hot := ""
				if e.Hot {
					hot = " (hot)"
				}
				fmt.Fprintf(out, "  %-16s %d%s\n", e.Name, e.Uses, hot)
			}
			return nil
		},
	}
}

func newInvokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <line>...",
		Short: "Dispatch invocations, one per argument",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := opts.open(c.Context(), c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			con := console.New(s.app.Pipeline, c.OutOrStdout(), s.callerID, opts.username, s.app.Pipeline.Logger())
			for _, line := range args {
				con.Invoke(c.Context(), line)
			}
			return nil
		},
	}
}

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Read invocations from stdin",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open(ctx, c.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintf(c.OutOrStdout(), "prefix %q, /name key=value for structured calls, \"exit\" to quit\n", s.app.Pipeline.Prefix())
			con := console.New(s.app.Pipeline, c.OutOrStdout(), s.callerID, opts.username, s.app.Pipeline.Logger())
			return con.Run(ctx, c.InOrStdin())
		},
	}
}
