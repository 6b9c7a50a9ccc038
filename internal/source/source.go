// Package source provides the command source the registry scans and the
// loader loads from. Commands are described by TOML manifests laid out as
// <category>/<name>.toml; the code behind a manifest is a Go factory looked up
// by the manifest's handler key, so "loading" builds a fresh implementation.
package source

import (
	"context"
	"errors"

	"github.com/keshon/lazycmd/internal/command"
)

var (
	ErrInvalidManifest = errors.New("invalid command manifest")
	ErrUnknownHandler  = errors.New("unknown command handler")
)

// Source is the external collaborator that knows where command code lives.
type Source interface {
	command.Lister
	Load(ctx context.Context, loc command.Locator) (*command.Definition, error)
	Invalidate(loc command.Locator)
}
