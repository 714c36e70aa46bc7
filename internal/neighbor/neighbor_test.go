package neighbor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/rplsim/internal/simclock"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(100, 1000)
	t.Cleanup(c.Stop)
	return c
}

func TestCache_RefreshThenLookup_ReturnsLastPacketTime(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	c.Refresh("a", simclock.Time(5))
	entry, ok := c.Lookup("a")
	require.True(t, ok)
	require.Equal(t, simclock.Time(5), entry.LastPacketTime)
	require.Equal(t, "a", entry.Neighbor)
}

func TestCache_Lookup_MissingNeighborReturnsFalse(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, ok := c.Lookup("ghost")
	require.False(t, ok)
}

func TestCache_Refresh_ReplacesExistingEntry(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	c.Refresh("a", simclock.Time(5))
	c.Refresh("a", simclock.Time(9))

	entry, ok := c.Lookup("a")
	require.True(t, ok)
	require.Equal(t, simclock.Time(9), entry.LastPacketTime)
}

func TestCache_ExpireOlderThan_RemovesOnlyStaleEntries(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	c.Refresh("stale", simclock.Time(0))
	c.Refresh("fresh", simclock.Time(90))

	removed := c.ExpireOlderThan(simclock.Time(100), simclock.Time(50))
	require.Equal(t, 1, removed)

	_, staleFound := c.Lookup("stale")
	require.False(t, staleFound)
	_, freshFound := c.Lookup("fresh")
	require.True(t, freshFound)
}

func TestCache_Remove_EvictsUnconditionally(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	c.Refresh("a", simclock.Time(5))
	c.Remove("a")

	_, ok := c.Lookup("a")
	require.False(t, ok)
}

func TestCache_List_ReturnsSnapshotOfAllEntries(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	c.Refresh("a", simclock.Time(1))
	c.Refresh("b", simclock.Time(2))

	entries := c.List()
	require.Len(t, entries, 2)
}
