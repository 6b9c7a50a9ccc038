// Package storagetest holds the behaviour every storage.Store backend must
// share, run by each backend's tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/storage"
)

// Opener returns a fresh, empty store. The test closes it.
type Opener func(t *testing.T) storage.Store

// Run exercises open against the shared contract.
func Run(t *testing.T, open Opener) {
	t.Run("Bans", func(t *testing.T) { testBans(t, open(t)) })
	t.Run("ExpiredBan", func(t *testing.T) { testExpiredBan(t, open(t)) })
	t.Run("ClearBan", func(t *testing.T) { testClearBan(t, open(t)) })
	t.Run("Levels", func(t *testing.T) { testLevels(t, open(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, open(t)) })
}

func testBans(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	ban, err := s.ActiveBan(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, ban)

	require.NoError(t, s.SetBan(ctx, storage.BanRecord{CallerID: "u1", Reason: "spam", IssuedBy: "owner"}))
	ban, err = s.ActiveBan(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "spam", ban.Reason)
	assert.True(t, ban.Permanent())

	until := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, s.SetBan(ctx, storage.BanRecord{CallerID: "u1", Reason: "cool off", ExpiresAt: until}))
	ban, err = s.ActiveBan(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "cool off", ban.Reason)
	assert.True(t, until.Equal(ban.ExpiresAt))

	other, err := s.ActiveBan(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func testExpiredBan(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetBan(ctx, storage.BanRecord{CallerID: "u1", ExpiresAt: time.Now().Add(-time.Minute)}))
	ban, err := s.ActiveBan(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, ban)
}

func testClearBan(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	assert.ErrorIs(t, s.ClearBan(ctx, "u1"), storage.ErrNotFound)

	require.NoError(t, s.SetBan(ctx, storage.BanRecord{CallerID: "u1"}))
	require.NoError(t, s.ClearBan(ctx, "u1"))
	ban, err := s.ActiveBan(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, ban)

	assert.ErrorIs(t, s.ClearBan(ctx, "u1"), storage.ErrNotFound)
}

func testLevels(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	level, err := s.Level(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, command.LevelNone, level)

	require.NoError(t, s.EnsureRegistered(ctx, "u1"))
	level, err = s.Level(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, command.LevelNone, level)

	require.NoError(t, s.SetLevel(ctx, "u1", command.LevelVerified))
	require.NoError(t, s.EnsureRegistered(ctx, "u1"))
	level, err = s.Level(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, command.LevelVerified, level, "registering again keeps the level")

	require.NoError(t, s.SetLevel(ctx, "u2", command.LevelBasic))
	level, err = s.Level(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, command.LevelBasic, level)
}

func testHistory(t *testing.T, s storage.Store) {
	defer s.Close()
	ctx := context.Background()

	list, err := s.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	total := storage.HistoryLimit + 5
	for i := range total {
		require.NoError(t, s.AppendHistory(ctx, storage.HistoryRecord{
			CallerID: "u1",
			Command:  fmt.Sprintf("cmd%02d", i),
			Kind:     "free-text",
			Datetime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err = s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, storage.HistoryLimit)
	assert.Equal(t, "cmd05", list[0].Command)
	assert.Equal(t, fmt.Sprintf("cmd%02d", total-1), list[len(list)-1].Command)
	assert.True(t, base.Add(time.Duration(total-1)*time.Minute).Equal(list[len(list)-1].Datetime))

	list, err = s.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, fmt.Sprintf("cmd%02d", total-3), list[0].Command)
}
