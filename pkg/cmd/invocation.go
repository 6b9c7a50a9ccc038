// Package cmd provides a transport-agnostic command core: an invocation is a
// named request from a caller, and a handler is something that runs it. How
// invocations are produced and answered (Discord slash, prefix messages, a
// console) is defined by adapters that implement Responder.
package cmd

import (
	"context"
	"strings"
	"sync/atomic"
)

// Kind tells how a command was (or can be) invoked.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStructured is an explicit name plus typed options (slash commands).
	KindStructured
	// KindText is a prefix message split into whitespace tokens.
	KindText
	// KindBoth marks a command that accepts either shape.
	KindBoth
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindText:
		return "free-text"
	case KindBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Accepts reports whether a command of kind k can serve an invocation of kind in.
func (k Kind) Accepts(in Kind) bool {
	if k == KindBoth {
		return in == KindStructured || in == KindText
	}
	return k != KindUnknown && k == in
}

// ParseKind maps manifest spellings to a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "slash":
		return KindStructured
	case "free-text", "text", "prefix":
		return KindText
	case "both", "":
		return KindBoth
	default:
		return KindUnknown
	}
}

// Response is what a handler (or the dispatcher) sends back to the caller.
type Response struct {
	Title     string
	Content   string
	Ephemeral bool
}

// Responder is implemented by gateways. Reply uses the platform's initial-reply
// primitive, which may be used at most once per invocation; Followup may be used
// any number of times after it.
type Responder interface {
	Reply(ctx context.Context, r Response) error
	Followup(ctx context.Context, r Response) error
}

// Invocation is one request from a caller to run a named command.
type Invocation struct {
	Name      string
	Text      string
	CallerID  string
	Username  string
	GuildID   string
	ChannelID string
	Kind      Kind
	Args      []string
	Options   map[string]string

	responder Responder
	responded atomic.Bool
}

// NewInvocation binds an invocation to the responder of the gateway it came from.
func NewInvocation(kind Kind, callerID string, r Responder) *Invocation {
	return &Invocation{Kind: kind, CallerID: callerID, responder: r}
}

// Responded reports whether the initial-reply primitive was already used.
func (inv *Invocation) Responded() bool { return inv.responded.Load() }

// Respond sends r as the initial reply if nothing was sent yet, otherwise as a
// follow-up. A failed initial reply leaves the initial reply unused.
func (inv *Invocation) Respond(ctx context.Context, r Response) error {
	if inv.responder == nil {
		return nil
	}
	if inv.responded.CompareAndSwap(false, true) {
		if err := inv.responder.Reply(ctx, r); err != nil {
			inv.responded.Store(false)
			return err
		}
		return nil
	}
	return inv.responder.Followup(ctx, r)
}

// Option returns a structured option, or the positional argument at index pos
// for free-text invocations.
func (inv *Invocation) Option(name string, pos int) string {
	if v, ok := inv.Options[name]; ok {
		return v
	}
	if pos >= 0 && pos < len(inv.Args) {
		return inv.Args[pos]
	}
	return ""
}

// Rest joins the free-text arguments starting at pos.
func (inv *Invocation) Rest(pos int) string {
	if pos >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[pos:], " ")
}
