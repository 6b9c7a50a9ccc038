// Package cooldown tracks per-caller, per-command rate limits in memory.
// Expiry is evaluated lazily on read; a periodic sweep bounds memory for
// entries nobody reads again.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often Run removes expired entries.
const DefaultSweepInterval = 5 * time.Minute

type key struct {
	caller string
	name   string
}

// Tracker stores expiry timestamps in epoch milliseconds.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]int64
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns an empty tracker.
func New(log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{entries: make(map[key]int64), now: time.Now, log: log}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Remaining returns the whole seconds left on the caller's cooldown for name,
// rounded up, or 0 when there is none. An expired entry is deleted by the read.
func (t *Tracker) Remaining(callerID, name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{callerID, name}
	expiresAt, ok := t.entries[k]
	if !ok {
		return 0
	}
	left := expiresAt - t.now().UnixMilli()
	if left <= 0 {
		delete(t.entries, k)
		return 0
	}
	return int((left + 999) / 1000)
}

// Set starts a cooldown of seconds for the caller on name. Non-positive values
// are ignored.
func (t *Tracker) Set(callerID, name string, seconds int) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key{callerID, name}] = t.now().UnixMilli() + int64(seconds)*1000
}

// Clear removes the caller's cooldowns for the given names, or all of the
// caller's cooldowns when no name is given. It returns how many were removed.
func (t *Tracker) Clear(callerID string, names ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	if len(names) > 0 {
		for _, n := range names {
			k := key{callerID, n}
			if _, ok := t.entries[k]; ok {
				delete(t.entries, k)
				removed++
			}
		}
		return removed
	}
	for k := range t.entries {
		if k.caller == callerID {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep removes every expired entry and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UnixMilli()
	removed := 0
	for k, expiresAt := range t.entries {
		if expiresAt <= now {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.log.Debug().Int("removed", n).Int("left", t.Len()).Msg("cooldown sweep")
			}
		}
	}
}
