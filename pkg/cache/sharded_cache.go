package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const numShards = 16

// Entry is the most recent observation for one window.
type Entry struct {
	WindowID  string    `json:"window_id"`
	Ticker    string    `json:"ticker,omitempty"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price"`
	Trend     string    `json:"trend"`
	ImagePath string    `json:"image_path,omitempty"`
	TS        time.Time `json:"ts"`
}

// TickCache holds the latest observation per window, sharded by window id
// so concurrent ingest workers do not contend on one lock.
type TickCache struct {
	shards [numShards]*tickShard
}

type tickShard struct {
	mu    sync.RWMutex
	items map[string]tickEntry
}

type tickEntry struct {
	entry     Entry
	updatedAt time.Time
}

// NewTickCache creates an empty cache.
func NewTickCache() *TickCache {
	c := &TickCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &tickShard{
			items: make(map[string]tickEntry),
		}
	}
	return c
}

func (c *TickCache) getShard(windowID string) *tickShard {
	h := fnv.New32a()
	h.Write([]byte(windowID))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest observation for a window.
func (c *TickCache) Set(e Entry) {
	shard := c.getShard(e.WindowID)
	shard.mu.Lock()
	shard.items[e.WindowID] = tickEntry{
		entry:     e,
		updatedAt: time.Now(),
	}
	shard.mu.Unlock()
}

// Get retrieves the latest observation for a window.
func (c *TickCache) Get(windowID string) (Entry, bool) {
	shard := c.getShard(windowID)
	shard.mu.RLock()
	item, ok := shard.items[windowID]
	shard.mu.RUnlock()
	return item.entry, ok
}

// GetWithAge retrieves the observation and how long ago it was cached.
func (c *TickCache) GetWithAge(windowID string) (Entry, time.Duration, bool) {
	shard := c.getShard(windowID)
	shard.mu.RLock()
	item, ok := shard.items[windowID]
	shard.mu.RUnlock()
	if !ok {
		return Entry{}, 0, false
	}
	return item.entry, time.Since(item.updatedAt), true
}

// Delete removes a window from the cache.
func (c *TickCache) Delete(windowID string) {
	shard := c.getShard(windowID)
	shard.mu.Lock()
	delete(shard.items, windowID)
	shard.mu.Unlock()
}

// Len returns total windows across all shards.
func (c *TickCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries not updated within maxAge.
func (c *TickCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for id, item := range shard.items {
			if item.updatedAt.Before(cutoff) {
				delete(shard.items, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// All returns every cached observation ordered by window id.
func (c *TickCache) All() []Entry {
	var res []Entry
	for _, shard := range c.shards {
		shard.mu.RLock()
		for _, item := range shard.items {
			res = append(res, item.entry)
		}
		shard.mu.RUnlock()
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WindowID < res[j].WindowID })
	return res
}
