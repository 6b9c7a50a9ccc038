// Package middleware holds the cmd.Middleware applied to every loaded command.
package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/storage"
	"github.com/keshon/lazycmd/pkg/cmd"
)

// HistoryRecorder persists executed commands.
type HistoryRecorder interface {
	AppendHistory(ctx context.Context, rec storage.HistoryRecord) error
}

// WithLogging logs each execution with its duration at debug level, and
// handler errors at warn level.
func WithLogging(log zerolog.Logger) cmd.Middleware {
	return func(name string, next cmd.HandlerFunc) cmd.HandlerFunc {
		return func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := next(ctx, inv)
			ev := log.Debug()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("cmd", name).
				Str("caller", inv.CallerID).
				Str("kind", inv.Kind.String()).
				Dur("took", time.Since(start)).
				Msg("command executed")
			return err
		}
	}
}

// WithHistory records successful executions. A failed write is logged and
// never fails the command.
func WithHistory(rec HistoryRecorder, log zerolog.Logger) cmd.Middleware {
	return func(name string, next cmd.HandlerFunc) cmd.HandlerFunc {
		return func(ctx context.Context, inv *cmd.Invocation) error {
			if err := next(ctx, inv); err != nil {
				return err
			}
			err := rec.AppendHistory(ctx, storage.HistoryRecord{
				CallerID:  inv.CallerID,
				Username:  inv.Username,
				GuildID:   inv.GuildID,
				ChannelID: inv.ChannelID,
				Command:   name,
				Kind:      inv.Kind.String(),
				Datetime:  time.Now().UTC(),
			})
			if err != nil {
				log.Warn().Err(err).Str("cmd", name).Msg("failed to record command history")
			}
			return nil
		}
	}
}
