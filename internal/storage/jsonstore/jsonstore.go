// Package jsonstore implements storage.Store on the JSON-file datastore.
package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/datastore"
	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/gate"
	"github.com/keshon/lazycmd/internal/storage"
)

const historyKey = "history"

type userRecord struct {
	Level        string             `json:"level"`
	RegisteredAt time.Time          `json:"registered_at"`
	Ban          *storage.BanRecord `json:"ban,omitempty"`
}

// Store keeps one record per caller under "user:<id>" and the command history
// under "history".
type Store struct {
	ds  *datastore.DataStore
	now func() time.Time
}

// Open opens (or creates) the JSON file at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = log
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{ds: ds, now: time.Now}, nil
}

func userKey(callerID string) string { return "user:" + callerID }

func (s *Store) user(callerID string) (userRecord, bool, error) {
	var rec userRecord
	ok, err := s.ds.Get(userKey(callerID), &rec)
	if err != nil {
		return userRecord{}, false, fmt.Errorf("read user %s: %w", callerID, err)
	}
	return rec, ok, nil
}

// ActiveBan returns the caller's ban if it has not expired.
func (s *Store) ActiveBan(ctx context.Context, callerID string) (*gate.Ban, error) {
	rec, ok, err := s.user(callerID)
	if err != nil || !ok || rec.Ban == nil {
		return nil, err
	}
	if !rec.Ban.Active(s.now()) {
		return nil, nil
	}
	return rec.Ban.Gate(), nil
}

// Level returns the caller's verification level; unknown callers are "none".
func (s *Store) Level(ctx context.Context, callerID string) (command.VerificationLevel, error) {
	rec, _, err := s.user(callerID)
	if err != nil {
		return command.LevelNone, err
	}
	return command.ParseLevel(rec.Level)
}

// EnsureRegistered creates a record for the caller when none exists.
func (s *Store) EnsureRegistered(ctx context.Context, callerID string) error {
	return datastore.Update(s.ds, userKey(callerID), func(rec *userRecord) error {
		if rec.RegisteredAt.IsZero() {
			rec.RegisteredAt = s.now().UTC()
			rec.Level = command.LevelNone.String()
		}
		return nil
	})
}

// SetLevel stores the caller's verification level.
func (s *Store) SetLevel(ctx context.Context, callerID string, level command.VerificationLevel) error {
	err := datastore.Update(s.ds, userKey(callerID), func(rec *userRecord) error {
		if rec.RegisteredAt.IsZero() {
			rec.RegisteredAt = s.now().UTC()
		}
		rec.Level = level.String()
		return nil
	})
	return s.flush(err)
}

// SetBan bans the caller, replacing any previous ban.
func (s *Store) SetBan(ctx context.Context, ban storage.BanRecord) error {
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = s.now().UTC()
	}
	err := datastore.Update(s.ds, userKey(ban.CallerID), func(rec *userRecord) error {
		rec.Ban = &ban
		return nil
	})
	return s.flush(err)
}

// ClearBan lifts the caller's ban.
func (s *Store) ClearBan(ctx context.Context, callerID string) error {
	err := datastore.Update(s.ds, userKey(callerID), func(rec *userRecord) error {
		if rec.Ban == nil {
			return storage.ErrNotFound
		}
		rec.Ban = nil
		return nil
	})
	return s.flush(err)
}

// flush saves moderation changes right away instead of waiting for autosave.
func (s *Store) flush(err error) error {
	if err != nil {
		return err
	}
	return s.ds.SaveToFile()
}

// AppendHistory appends rec, keeping the newest storage.HistoryLimit records.
func (s *Store) AppendHistory(ctx context.Context, rec storage.HistoryRecord) error {
	if rec.Datetime.IsZero() {
		rec.Datetime = s.now().UTC()
	}
	return datastore.Update(s.ds, historyKey, func(list *[]storage.HistoryRecord) error {
		*list = append(*list, rec)
		if len(*list) > storage.HistoryLimit {
			*list = (*list)[len(*list)-storage.HistoryLimit:]
		}
		return nil
	})
}

// History returns up to limit records, newest last.
func (s *Store) History(ctx context.Context, limit int) ([]storage.HistoryRecord, error) {
	var list []storage.HistoryRecord
	if _, err := s.ds.Get(historyKey, &list); err != nil {
		return nil, err
	}
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list, nil
}

// Close flushes the datastore.
func (s *Store) Close() error {
	return s.ds.Close()
}
