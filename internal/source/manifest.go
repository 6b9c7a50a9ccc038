package source

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
)

// manifest is the on-disk description of one command.
type manifest struct {
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	Handler      string `toml:"handler"`
	Kind         string `toml:"kind"`
	Enabled      *bool  `toml:"enabled"`
	Cooldown     int    `toml:"cooldown"`
	OwnerOnly    bool   `toml:"owner_only"`
	Verification string `toml:"verification"`
	AuthRequired bool   `toml:"auth_required"`

	Options []manifestOption `toml:"option"`
}

type manifestOption struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Type        string `toml:"type"`
	Required    bool   `toml:"required"`
}

func parseManifest(data []byte) (manifest, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.Name = strings.ToLower(strings.TrimSpace(m.Name))
	if m.Name == "" {
		return manifest{}, fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if strings.ContainsAny(m.Name, " \t\n") {
		return manifest{}, fmt.Errorf("%w: name %q contains whitespace", ErrInvalidManifest, m.Name)
	}
	if m.Handler == "" {
		m.Handler = m.Name
	}
	if m.Cooldown < 0 {
		return manifest{}, fmt.Errorf("%w: cooldown must be >= 0", ErrInvalidManifest)
	}
	if cmd.ParseKind(m.Kind) == cmd.KindUnknown {
		return manifest{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidManifest, m.Kind)
	}
	if _, err := command.ParseLevel(m.Verification); err != nil {
		return manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	seen := make(map[string]struct{}, len(m.Options))
	for i := range m.Options {
		o := &m.Options[i]
		o.Name = strings.ToLower(strings.TrimSpace(o.Name))
		if o.Name == "" {
			return manifest{}, fmt.Errorf("%w: option %d has no name", ErrInvalidManifest, i)
		}
		if _, dup := seen[o.Name]; dup {
			return manifest{}, fmt.Errorf("%w: duplicate option %q", ErrInvalidManifest, o.Name)
		}
		seen[o.Name] = struct{}{}
		switch o.Type {
		case "":
			o.Type = cmd.OptionString
		case cmd.OptionString, cmd.OptionInteger, cmd.OptionBoolean, cmd.OptionUser:
		default:
			return manifest{}, fmt.Errorf("%w: option %q has unknown type %q", ErrInvalidManifest, o.Name, o.Type)
		}
	}
	return m, nil
}

func (m manifest) metadata(loc command.Locator) command.Metadata {
	level, _ := command.ParseLevel(m.Verification)
	enabled := true
	if m.Enabled != nil {
		enabled = *m.Enabled
	}
	var opts []cmd.Option
	for _, o := range m.Options {
		opts = append(opts, cmd.Option{Name: o.Name, Description: o.Description, Type: o.Type, Required: o.Required})
	}
	return command.Metadata{
		Name:              m.Name,
		Description:       m.Description,
		Category:          loc.Category,
		Locator:           loc,
		Kind:              cmd.ParseKind(m.Kind),
		Enabled:           enabled,
		CooldownSeconds:   m.Cooldown,
		OwnerOnly:         m.OwnerOnly,
		VerificationLevel: level,
		AuthRequired:      m.AuthRequired,
		Options:           opts,
	}
}
