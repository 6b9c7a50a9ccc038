// Package dispatch turns one invocation into at most one command execution:
// resolve the command, run the gate, load the implementation, execute it and
// finalize (commit the cooldown or report the failure once).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/gate"
	"github.com/keshon/lazycmd/pkg/cmd"
)

// Outcome is how an invocation ended.
type Outcome int

const (
	// Ignored: unknown command or not addressed to us.
	Ignored Outcome = iota
	// Denied: the gate refused; the caller got one message.
	Denied
	// Unavailable: the command is disabled or failed to load.
	Unavailable
	// Succeeded: the handler returned nil and the cooldown was committed.
	Succeeded
	// Failed: the handler returned an error or panicked.
	Failed
)

func (o Outcome) String() string {
	names := [...]string{"ignored", "denied", "unavailable", "succeeded", "failed"}
	if o < 0 || int(o) >= len(names) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return names[o]
}

// Catalog resolves names and aliases to metadata.
type Catalog interface {
	Get(name string) (command.Metadata, bool)
}

// Loader returns resident implementations.
type Loader interface {
	GetOrLoad(ctx context.Context, name string) (*command.Implementation, bool)
}

// Authorizer decides whether an invocation may proceed.
type Authorizer interface {
	Evaluate(ctx context.Context, meta command.Metadata, callerID string) gate.Decision
}

// CooldownSetter commits cooldowns after successful runs.
type CooldownSetter interface {
	Set(callerID, name string, seconds int)
}

// Config carries the dispatcher's collaborators.
type Config struct {
	Catalog   Catalog
	Loader    Loader
	Gate      Authorizer
	Cooldowns CooldownSetter
	Prefix    string
}

// Dispatcher is safe for concurrent use; each invocation is independent.
type Dispatcher struct {
	catalog   Catalog
	loader    Loader
	gate      Authorizer
	cooldowns CooldownSetter
	prefix    string
	log       zerolog.Logger
}

// New returns a dispatcher.
func New(cfg Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:   cfg.Catalog,
		loader:    cfg.Loader,
		gate:      cfg.Gate,
		cooldowns: cfg.Cooldowns,
		prefix:    cfg.Prefix,
		log:       log,
	}
}

// Prefix returns the free-text command prefix.
func (d *Dispatcher) Prefix() string { return d.prefix }

// FailureNotice is the only thing a caller learns about a failed command.
var FailureNotice = cmd.Response{
	Title:     "Something went wrong",
	Content:   "The command failed to run. Please try again later.",
	Ephemeral: true,
}

// Dispatch runs inv through RESOLVE, GATE, LOAD, EXECUTE and FINALIZE.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *cmd.Invocation) Outcome {
	meta, ok := d.resolve(inv)
	if !ok {
		return Ignored
	}
	log := d.log.With().Str("cmd", meta.Name).Str("caller", inv.CallerID).Str("kind", inv.Kind.String()).Logger()

	decision := d.gate.Evaluate(ctx, meta, inv.CallerID)
	if !decision.Allow {
		log.Debug().Str("stage", decision.Stage.String()).Msg("invocation denied")
		d.deny(ctx, inv, decision, log)
		return Denied
	}

	impl, ok := d.loader.GetOrLoad(ctx, meta.Name)
	if !ok {
		log.Warn().Msg("command unavailable")
		return Unavailable
	}
	handler := impl.Handler(inv.Kind)
	if handler == nil {
		log.Warn().Str("impl_kind", impl.Kind.String()).Msg("implementation does not handle this invocation kind")
		return Unavailable
	}

	if err := execute(ctx, handler, inv); err != nil {
		d.fail(ctx, inv, err, log)
		return Failed
	}

	d.cooldowns.Set(inv.CallerID, meta.Name, meta.CooldownSeconds)
	return Succeeded
}

// resolve finds the command an invocation targets and normalizes inv.Name.
func (d *Dispatcher) resolve(inv *cmd.Invocation) (command.Metadata, bool) {
	switch inv.Kind {
	case cmd.KindStructured:
		meta, ok := d.catalog.Get(inv.Name)
		if !ok || !meta.Kind.Accepts(cmd.KindStructured) {
			d.log.Warn().Str("cmd", inv.Name).Str("caller", inv.CallerID).Msg("unknown structured command")
			return command.Metadata{}, false
		}
		inv.Name = meta.Name
		return meta, true

	case cmd.KindText:
		name, args, ok := ParseText(d.prefix, inv.Text)
		if !ok {
			return command.Metadata{}, false
		}
		meta, ok := d.catalog.Get(name)
		if !ok || !meta.Kind.Accepts(cmd.KindText) {
			return command.Metadata{}, false
		}
		inv.Name = meta.Name
		inv.Args = args
		return meta, true
	}
	return command.Metadata{}, false
}

// ParseText splits a prefix message into a lower-cased command token and its
// arguments. It reports false when text does not start with prefix or holds
// no command token.
func ParseText(prefix, text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (d *Dispatcher) deny(ctx context.Context, inv *cmd.Invocation, decision gate.Decision, log zerolog.Logger) {
	content := decision.Reason
	if decision.Prompt != "" {
		content += "\n" + decision.Prompt
	}
	if err := inv.Respond(ctx, cmd.Response{Content: content, Ephemeral: true}); err != nil {
		log.Error().Err(err).Msg("failed to deliver denial")
	}
}

func (d *Dispatcher) fail(ctx context.Context, inv *cmd.Invocation, err error, log zerolog.Logger) {
	ev := log.Error().Err(err).Bool("responded", inv.Responded())
	var pe *PanicError
	if errors.As(err, &pe) {
		ev = ev.Str("stack", string(pe.Stack))
	}
	ev.Msg("command failed")

	if err := inv.Respond(ctx, FailureNotice); err != nil {
		log.Error().Err(err).Msg("failed to deliver failure notice")
	}
}

// PanicError is a handler panic converted to an error at the execute boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

func execute(ctx context.Context, h cmd.HandlerFunc, inv *cmd.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(ctx, inv)
}
