package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTracker() (*Tracker, *clock) {
	c := &clock{now: time.UnixMilli(1_700_000_000_000)}
	return New(zerolog.Nop(), WithClock(c.Now)), c
}

func TestRemaining(t *testing.T) {
	tr, clk := newTracker()

	assert.Equal(t, 0, tr.Remaining("u", "foo"))

	tr.Set("u", "foo", 5)
	assert.Equal(t, 5, tr.Remaining("u", "foo"))

	clk.Advance(2 * time.Second)
	assert.Equal(t, 3, tr.Remaining("u", "foo"))

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, 3, tr.Remaining("u", "foo"), "partial seconds round up")

	assert.Equal(t, 0, tr.Remaining("other", "foo"))
	assert.Equal(t, 0, tr.Remaining("u", "bar"))
}

func TestExpiredEntryDeletedOnRead(t *testing.T) {
	tr, clk := newTracker()
	tr.Set("u", "foo", 1)
	require.Equal(t, 1, tr.Len())

	clk.Advance(time.Second)
	assert.Equal(t, 0, tr.Remaining("u", "foo"))
	assert.Equal(t, 0, tr.Len())
}

func TestSetNonPositiveIsNoop(t *testing.T) {
	tr, _ := newTracker()
	tr.Set("u", "foo", 0)
	tr.Set("u", "foo", -3)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0, tr.Remaining("u", "foo"))
}

func TestSetOverwrites(t *testing.T) {
	tr, _ := newTracker()
	tr.Set("u", "foo", 30)
	tr.Set("u", "foo", 5)
	assert.Equal(t, 5, tr.Remaining("u", "foo"))
	assert.Equal(t, 1, tr.Len())
}

func TestClear(t *testing.T) {
	tr, _ := newTracker()
	tr.Set("u", "a", 10)
	tr.Set("u", "b", 10)
	tr.Set("u", "c", 10)
	tr.Set("v", "a", 10)

	assert.Equal(t, 1, tr.Clear("u", "a", "missing"))
	assert.Equal(t, 0, tr.Remaining("u", "a"))

	assert.Equal(t, 2, tr.Clear("u"))
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 10, tr.Remaining("v", "a"))
}

func TestSweep(t *testing.T) {
	tr, clk := newTracker()
	tr.Set("u", "short", 1)
	tr.Set("u", "long", 60)
	tr.Set("v", "short", 2)

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, tr.Sweep())
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 58, tr.Remaining("u", "long"))
	assert.Equal(t, 0, tr.Sweep())
}

func TestRunStopsWithContext(t *testing.T) {
	tr, clk := newTracker()
	tr.Set("u", "foo", 1)
	clk.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
