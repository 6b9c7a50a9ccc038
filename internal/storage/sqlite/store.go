// Package sqlite implements storage.Store on SQLite (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/gate"
	"github.com/keshon/lazycmd/internal/storage"
	"github.com/keshon/lazycmd/internal/storage/sqlite/migrations"
)

const upMarker = "-- +migrate Up"

// Store is a SQLite-backed storage.Store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

type banRow struct {
	CallerID  string        `db:"caller_id"`
	Reason    string        `db:"reason"`
	IssuedBy  string        `db:"issued_by"`
	CreatedAt int64         `db:"created_at"`
	ExpiresAt sql.NullInt64 `db:"expires_at"`
}

type historyRow struct {
	CallerID  string `db:"caller_id"`
	Username  string `db:"username"`
	GuildID   string `db:"guild_id"`
	ChannelID string `db:"channel_id"`
	Command   string `db:"command"`
	Kind      string `db:"kind"`
	CreatedAt int64  `db:"created_at"`
}

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate applies each embedded .sql file at most once.
func (s *Store) migrate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var n int
		if err := s.db.Get(&n, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		up := string(content)
		if i := strings.Index(up, upMarker); i >= 0 {
			up = up[i+len(upMarker):]
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(s.now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// ActiveBan returns the caller's ban if it has not expired.
func (s *Store) ActiveBan(ctx context.Context, callerID string) (*gate.Ban, error) {
	var row banRow
	err := s.db.GetContext(ctx, &row,
		`SELECT caller_id, reason, issued_by, created_at, expires_at FROM bans WHERE caller_id = ?`, callerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ban: %w", err)
	}
	rec := storage.BanRecord{
		CallerID:  row.CallerID,
		Reason:    row.Reason,
		IssuedBy:  row.IssuedBy,
		CreatedAt: fromMillis(row.CreatedAt),
	}
	if row.ExpiresAt.Valid {
		rec.ExpiresAt = fromMillis(row.ExpiresAt.Int64)
	}
	if !rec.Active(s.now()) {
		return nil, nil
	}
	return rec.Gate(), nil
}

// Level returns the caller's verification level; unknown callers are "none".
func (s *Store) Level(ctx context.Context, callerID string) (command.VerificationLevel, error) {
	var level string
	err := s.db.GetContext(ctx, &level, `SELECT level FROM users WHERE caller_id = ?`, callerID)
	if errors.Is(err, sql.ErrNoRows) {
		return command.LevelNone, nil
	}
	if err != nil {
		return command.LevelNone, fmt.Errorf("get level: %w", err)
	}
	return command.ParseLevel(level)
}

// EnsureRegistered creates a user row when none exists.
func (s *Store) EnsureRegistered(ctx context.Context, callerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (caller_id, level, registered_at) VALUES (?, ?, ?) ON CONFLICT(caller_id) DO NOTHING`,
		callerID, command.LevelNone.String(), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// SetLevel stores the caller's verification level.
func (s *Store) SetLevel(ctx context.Context, callerID string, level command.VerificationLevel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (caller_id, level, registered_at) VALUES (?, ?, ?)
ON CONFLICT(caller_id) DO UPDATE SET level = excluded.level`,
		callerID, level.String(), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	return nil
}

// SetBan bans the caller, replacing any previous ban.
func (s *Store) SetBan(ctx context.Context, ban storage.BanRecord) error {
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = s.now()
	}
	var expires sql.NullInt64
	if !ban.ExpiresAt.IsZero() {
		expires = sql.NullInt64{Int64: toMillis(ban.ExpiresAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (caller_id, reason, issued_by, created_at, expires_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(caller_id) DO UPDATE SET reason = excluded.reason, issued_by = excluded.issued_by,
    created_at = excluded.created_at, expires_at = excluded.expires_at`,
		ban.CallerID, ban.Reason, ban.IssuedBy, toMillis(ban.CreatedAt), expires)
	if err != nil {
		return fmt.Errorf("set ban: %w", err)
	}
	return nil
}

// ClearBan lifts the caller's ban.
func (s *Store) ClearBan(ctx context.Context, callerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE caller_id = ?`, callerID)
	if err != nil {
		return fmt.Errorf("clear ban: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear ban: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendHistory appends rec, keeping the newest storage.HistoryLimit records.
func (s *Store) AppendHistory(ctx context.Context, rec storage.HistoryRecord) error {
	if rec.Datetime.IsZero() {
		rec.Datetime = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (caller_id, username, guild_id, channel_id, command, kind, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CallerID, rec.Username, rec.GuildID, rec.ChannelID, rec.Command, rec.Kind, toMillis(rec.Datetime),
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)`,
		storage.HistoryLimit,
	); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit records, newest last.
func (s *Store) History(ctx context.Context, limit int) ([]storage.HistoryRecord, error) {
	if limit <= 0 {
		limit = storage.HistoryLimit
	}
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT caller_id, username, guild_id, channel_id, command, kind, created_at
FROM history ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]storage.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, storage.HistoryRecord{
			CallerID:  row.CallerID,
			Username:  row.Username,
			GuildID:   row.GuildID,
			ChannelID: row.ChannelID,
			Command:   row.Command,
			Kind:      row.Kind,
			Datetime:  fromMillis(row.CreatedAt),
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ storage.Store = (*Store)(nil)
