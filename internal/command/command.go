// Package command holds the immutable catalog of known commands: metadata built
// from the command source at startup, and the implementation shape the loader
// produces when a command becomes resident.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/lazycmd/pkg/cmd"
)

var (
	ErrNotFound = errors.New("command not found")
	ErrDisabled = errors.New("command disabled")
)

// VerificationLevel is a caller's tiered authorization state.
type VerificationLevel int

const (
	LevelNone VerificationLevel = iota
	LevelBasic
	LevelVerified
)

func (l VerificationLevel) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelVerified:
		return "verified"
	default:
		return "none"
	}
}

// ParseLevel parses "none", "basic" or "verified".
func ParseLevel(s string) (VerificationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LevelNone, nil
	case "basic":
		return LevelBasic, nil
	case "verified":
		return LevelVerified, nil
	}
	return LevelNone, fmt.Errorf("unknown verification level %q", s)
}

// Locator identifies where a command's implementation lives.
type Locator struct {
	Category string
	Name     string
	Path     string
}

func (l Locator) String() string {
	if l.Path != "" {
		return l.Path
	}
	return l.Category + "/" + l.Name
}

// Metadata describes a command without holding any code.
type Metadata struct {
	Name              string
	Description       string
	Category          string
	Locator           Locator
	Aliases           []string
	Kind              cmd.Kind
	Enabled           bool
	CooldownSeconds   int
	OwnerOnly         bool
	VerificationLevel VerificationLevel
	AuthRequired      bool
	// Options are the typed options of structured invocations.
	Options []cmd.Option
}

// RequiredLevel is the verification level a caller needs to run the command.
func (m Metadata) RequiredLevel() VerificationLevel {
	if m.AuthRequired && m.VerificationLevel < LevelBasic {
		return LevelBasic
	}
	return m.VerificationLevel
}

// Definition is what a source returns when it loads a locator.
type Definition struct {
	Name    string
	Command cmd.Command
}

// Implementation is a resident, invocable command. Handlers are resolved once
// at load time; a nil handler means the kind is not supported.
type Implementation struct {
	Name       string
	Kind       cmd.Kind
	Aliases    []string
	Structured cmd.HandlerFunc
	Text       cmd.HandlerFunc
	Command    cmd.Command
}

// Handler returns the handler serving an invocation of the given kind.
func (impl *Implementation) Handler(k cmd.Kind) cmd.HandlerFunc {
	switch k {
	case cmd.KindStructured:
		return impl.Structured
	case cmd.KindText:
		return impl.Text
	}
	return nil
}

// Classify resolves the tagged handler shape of a loaded command.
func Classify(def *Definition) *Implementation {
	impl := &Implementation{Name: def.Name, Command: def.Command}
	if r, ok := def.Command.(cmd.StructuredRunner); ok {
		impl.Structured = r.RunStructured
	}
	if r, ok := def.Command.(cmd.TextRunner); ok {
		impl.Text = r.RunText
	}
	switch {
	case impl.Structured != nil && impl.Text != nil:
		impl.Kind = cmd.KindBoth
	case impl.Structured != nil:
		impl.Kind = cmd.KindStructured
	case impl.Text != nil:
		impl.Kind = cmd.KindText
	}
	if a, ok := def.Command.(cmd.AliasProvider); ok {
		for _, alias := range a.Aliases() {
			if alias = normalize(alias); alias != "" && alias != normalize(def.Name) {
				impl.Aliases = append(impl.Aliases, alias)
			}
		}
	}
	return impl
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
