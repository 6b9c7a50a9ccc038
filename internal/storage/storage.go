// Package storage defines the persistent stores behind the authorization gate
// (bans and verification levels) and the command history, with JSON-file and
// SQLite backends in sub-packages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/gate"
)

// HistoryLimit is how many history records are kept.
const HistoryLimit = 20

var ErrNotFound = errors.New("not found")

// BanRecord is a stored ban. A zero ExpiresAt means permanent.
type BanRecord struct {
	CallerID  string    `json:"caller_id"`
	Reason    string    `json:"reason"`
	IssuedBy  string    `json:"issued_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the ban still applies at now.
func (b BanRecord) Active(now time.Time) bool {
	return b.ExpiresAt.IsZero() || b.ExpiresAt.After(now)
}

// Gate converts the record to the gate's view of a ban.
func (b BanRecord) Gate() *gate.Ban {
	return &gate.Ban{Reason: b.Reason, ExpiresAt: b.ExpiresAt}
}

// HistoryRecord is one successful command execution.
type HistoryRecord struct {
	CallerID  string    `json:"caller_id"`
	Username  string    `json:"username"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Command   string    `json:"command"`
	Kind      string    `json:"kind"`
	Datetime  time.Time `json:"datetime"`
}

// Store is implemented by every backend.
type Store interface {
	gate.BanStore
	gate.VerificationStore

	SetBan(ctx context.Context, ban BanRecord) error
	ClearBan(ctx context.Context, callerID string) error
	SetLevel(ctx context.Context, callerID string, level command.VerificationLevel) error
	AppendHistory(ctx context.Context, rec HistoryRecord) error
	// History returns up to limit records, newest last.
	History(ctx context.Context, limit int) ([]HistoryRecord, error)
	Close() error
}
