// Package console is a line-oriented gateway over stdin/stdout. Lines starting
// with "/" are structured invocations ("/roll formula=2d6"), lines starting
// with the command prefix are free-text invocations.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/dispatch"
	"github.com/keshon/lazycmd/pkg/cmd"
)

// Pipeline is what the console needs from the command pipeline.
type Pipeline interface {
	Dispatch(ctx context.Context, inv *cmd.Invocation) dispatch.Outcome
	Prefix() string
}

// Console dispatches each input line as one invocation by a fixed caller.
type Console struct {
	p        Pipeline
	out      io.Writer
	mu       sync.Mutex
	callerID string
	username string
	log      zerolog.Logger
}

func New(p Pipeline, out io.Writer, callerID, username string, log zerolog.Logger) *Console {
	return &Console{p: p, out: out, callerID: callerID, username: username, log: log}
}

// Run reads lines from in until EOF, "exit" or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "exit", "quit":
				return nil
			default:
				outcome := c.Invoke(ctx, line)
				c.log.Debug().Str("outcome", outcome.String()).Msg("console invocation")
			}
			c.prompt()
		}
	}
}

// Invoke dispatches one line.
func (c *Console) Invoke(ctx context.Context, line string) dispatch.Outcome {
	inv := c.Parse(line)
	out := c.p.Dispatch(ctx, inv)
	if out == dispatch.Ignored {
		c.printf("(no such command)\n")
	}
	return out
}

// Parse builds the invocation for a line. Structured "key=value" tokens
// become options, other tokens become positional arguments.
func (c *Console) Parse(line string) *cmd.Invocation {
	if rest, ok := strings.CutPrefix(line, "/"); ok {
		inv := cmd.NewInvocation(cmd.KindStructured, c.callerID, c)
		inv.Username = c.username
		inv.Options = make(map[string]string)
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			inv.Name = fields[0]
			for _, f := range fields[1:] {
				if k, v, ok := strings.Cut(f, "="); ok && k != "" {
					inv.Options[strings.ToLower(k)] = v
					continue
				}
				inv.Args = append(inv.Args, f)
			}
		}
		return inv
	}
	inv := cmd.NewInvocation(cmd.KindText, c.callerID, c)
	inv.Username = c.username
	inv.Text = line
	return inv
}

// Reply prints the initial answer.
func (c *Console) Reply(ctx context.Context, r cmd.Response) error {
	return c.write("", r)
}

// Followup prints an additional answer.
func (c *Console) Followup(ctx context.Context, r cmd.Response) error {
	return c.write("↳ ", r)
}

func (c *Console) write(lead string, r cmd.Response) error {
	var sb strings.Builder
	sb.WriteString(lead)
	if r.Title != "" {
		fmt.Fprintf(&sb, "[%s] ", r.Title)
	}
	if r.Ephemeral {
		sb.WriteString("(only you) ")
	}
	sb.WriteString(r.Content)
	sb.WriteString("\n")
	return c.printf("%s", sb.String())
}

func (c *Console) prompt() {
	_ = c.printf("%s> ", c.username)
}

func (c *Console) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}
