// Package neighbor implements the per-node neighbor cache: entries expire
// ip_neighbor_timeout after their last packet time, mirroring ip_neighbor_t
// from the reference simulator. Backed by ttlcache, whose wall-clock TTL
// (last-write-refreshes-TTL) runs unattended; expiry in simulated time is
// the separate ExpireOlderThan sweep.
package neighbor

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/malbeclabs/rplsim/internal/simclock"
)

// Entry records the last time a packet was received from a neighbor.
type Entry struct {
	Neighbor       any // opaque node handle, as routing.Route.NextHop
	LastPacketTime simclock.Time
}

// Cache is a node's neighbor cache, keyed by the neighbor's node handle.
type Cache struct {
	c *ttlcache.Cache[any, *Entry]
}

// New constructs a Cache whose entries expire after timeout. timeout is
// given in simulated time units but converted to a real TTL using
// simulationSecond so ttlcache's own wall-clock janitor can run unattended;
// the simulator's event-driven sweep (event_neighbor_cache_timeout_check)
// remains the authoritative expiry signal within simulated time via
// ExpireOlderThan.
func New(timeout simclock.Time, simulationSecond int64) *Cache {
	ttl := time.Duration(timeout) * time.Second
	if simulationSecond > 0 {
		ttl = time.Duration(timeout) * time.Second / time.Duration(simulationSecond)
	}
	c := ttlcache.New[any, *Entry](
		ttlcache.WithTTL[any, *Entry](ttl),
	)
	go c.Start()
	return &Cache{c: c}
}

// Refresh records a packet received from neighbor at now, resetting its TTL.
func (c *Cache) Refresh(neighbor any, now simclock.Time) {
	c.c.Set(neighbor, &Entry{Neighbor: neighbor, LastPacketTime: now}, ttlcache.DefaultTTL)
}

// Lookup returns the cached entry for neighbor, if present and unexpired.
func (c *Cache) Lookup(neighbor any) (*Entry, bool) {
	item := c.c.Get(neighbor)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// ExpireOlderThan removes every entry whose LastPacketTime is more than
// timeout before now — the event-driven sweep
// event_neighbor_cache_timeout_check performs, authoritative in simulated
// time regardless of ttlcache's own wall-clock janitor cadence.
func (c *Cache) ExpireOlderThan(now simclock.Time, timeout simclock.Time) int {
	removed := 0
	for _, item := range c.c.Items() {
		e := item.Value()
		if now-e.LastPacketTime > timeout {
			c.c.Delete(item.Key())
			removed++
		}
	}
	return removed
}

// List returns a snapshot of all cached neighbors.
func (c *Cache) List() []*Entry {
	items := c.c.Items()
	out := make([]*Entry, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	return out
}

// Remove evicts neighbor unconditionally, used when a node is killed.
func (c *Cache) Remove(neighbor any) {
	c.c.Delete(neighbor)
}

// Stop halts the background janitor goroutine.
func (c *Cache) Stop() {
	c.c.Stop()
}
