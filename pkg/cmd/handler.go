package cmd

import "context"

// HandlerFunc runs one invocation.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Command is the universal contract every loadable implementation satisfies:
// identity plus description. What it can run is declared by the optional
// StructuredRunner and TextRunner interfaces.
type Command interface {
	Name() string
	Description() string
}

// StructuredRunner handles slash-style invocations.
type StructuredRunner interface {
	RunStructured(ctx context.Context, inv *Invocation) error
}

// TextRunner handles prefix-style invocations.
type TextRunner interface {
	RunText(ctx context.Context, inv *Invocation) error
}

// AliasProvider exposes extra names the command answers to.
type AliasProvider interface {
	Aliases() []string
}

// Option types understood by gateways.
const (
	OptionString  = "string"
	OptionInteger = "integer"
	OptionBoolean = "boolean"
	OptionUser    = "user"
)

// Option describes one typed option of a structured command. For free-text
// invocations options map to positional arguments in declaration order.
type Option struct {
	Name        string
	Description string
	Type        string
	Required    bool
}
