// Package cache holds compiled queries behind two composite keys: a
// source-level key derived from the raw SQL fingerprint, answered before
// any parsing happens, and a plan-level key derived from the rewritten
// plan's hash, answered before emission. Both point at the same immutable
// entry inside one bounded LRU store.
package cache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/TFMV/crossplan/pkg/models"
)

// Entry is a compiled query. Entries are immutable once stored; the hit
// counter is the only mutable state and it is atomic.
type Entry struct {
	SQL       string
	Headers   []string
	NodeCount int
	Depth     int
	CreatedAt time.Time

	hits atomic.Uint64
}

// Hits returns how often the entry has been served from the cache.
func (e *Entry) Hits() uint64 {
	return e.hits.Load()
}

// Key identifies a compiled query at both cache levels.
type Key struct {
	Fingerprint uint64
	PlanHash    uint64
	Backend     models.Backend
	Page        *models.Pagination
	Options     models.CompileOptions
}

// SourceKey is the level answered from raw SQL, before parsing.
func (k Key) SourceKey() string {
	return fmt.Sprintf("src:%s:%016x%s", k.Backend, k.Fingerprint, k.suffix())
}

// PlanKey is the level answered from the rewritten plan's hash.
func (k Key) PlanKey() string {
	return fmt.Sprintf("plan:%s:%016x%s", k.Backend, k.PlanHash, k.suffix())
}

// Compile options change the emitted SQL, so they are part of both keys.
func (k Key) suffix() string {
	var sb strings.Builder
	if k.Options.AutoLimit {
		sb.WriteString(":al")
	}
	if k.Page != nil {
		fmt.Fprintf(&sb, ":pg=%d,%d", k.Page.Size, k.Page.Offset)
	}
	return sb.String()
}

// PlanCache is a bounded LRU store keyed by composite strings. The store
// lock covers only map and list operations; statistics are atomic and
// compilation collapse is delegated to singleflight.
type PlanCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	stats    *StatsCollector
	group    singleflight.Group
}

type lruItem struct {
	key   string
	entry *Entry
}

// New creates a plan cache from the configuration.
func New(cfg *Config) *PlanCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PlanCache{
		capacity: capacity,
		ttl:      cfg.TTL,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		stats:    NewStatsCollector(),
	}
}

// Get returns the entry under key, refreshing its recency. Expired entries
// are dropped and reported as misses.
func (c *PlanCache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		item := el.Value.(*lruItem)
		if c.expired(item.entry) {
			c.removeLocked(el)
			c.mu.Unlock()
			c.stats.RecordMiss()
			return nil, false
		}
		c.ll.MoveToFront(el)
		c.mu.Unlock()
		item.entry.hits.Add(1)
		c.stats.RecordHit()
		return item.entry, true
	}
	c.mu.Unlock()
	c.stats.RecordMiss()
	return nil, false
}

// Put stores the entry under key, evicting from the cold end when full.
func (c *PlanCache) Put(key string, e *Entry) {
	evictions := 0
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem).entry = e
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&lruItem{key: key, entry: e})
		for c.ll.Len() > c.capacity {
			c.removeLocked(c.ll.Back())
			evictions++
		}
	}
	size := c.ll.Len()
	c.mu.Unlock()

	for i := 0; i < evictions; i++ {
		c.stats.RecordEviction()
	}
	c.stats.UpdateSize(int64(size))
}

// PutBoth stores one entry under its source-level and plan-level keys.
func (c *PlanCache) PutBoth(srcKey, planKey string, e *Entry) {
	c.Put(planKey, e)
	c.Put(srcKey, e)
}

// Do returns the cached entry for key or compiles it via fn, collapsing
// concurrent same-key compiles into one call. Failed compiles are never
// stored.
func (c *PlanCache) Do(key string, fn func() (*Entry, error)) (*Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent compile may have landed while we queued; peek so
		// the re-check doesn't count a second miss for one lookup.
		if e, ok := c.peek(key); ok {
			return e, nil
		}
		e, err := fn()
		if err != nil {
			return nil, err
		}
		if _, stored := c.peek(key); !stored {
			c.Put(key, e)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// peek checks for key without touching recency or statistics.
func (c *PlanCache) peek(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*lruItem).entry, true
}

// Len returns the number of stored keys.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ll.Len()
}

// Clear drops every entry.
func (c *PlanCache) Clear() {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
	c.mu.Unlock()
	c.stats.UpdateSize(0)
}

// Stats returns a snapshot of the counters without taking the store lock.
func (c *PlanCache) Stats() Stats {
	return c.stats.GetStats()
}

func (c *PlanCache) expired(e *Entry) bool {
	return c.ttl > 0 && time.Since(e.CreatedAt) > c.ttl
}

func (c *PlanCache) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruItem).key)
}
