// Package respcache implements the bounded TTL ResponseCache keyed by
// (state, lead, normalized-utterance hash), grounded on the teacher's
// bounded idempotency-window map (internal/tasks.Manager) adapted from a
// dedup window to a reply cache, plus golang.org/x/sync/singleflight to
// collapse concurrent identical-key LLM calls into one upstream request.
package respcache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/ent0n29/salesagent/internal/intent"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cache slot.
type Key struct {
	StateID int
	LeadID  string
	Hash    uint32
}

type entry struct {
	reply     string
	expiresAt time.Time
	insertedAt time.Time
}

// Cache is the bounded TTL reply cache. One instance per process.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxSize  int
	entries  map[Key]entry
	order    []Key // insertion order, for oldest-insertion-first eviction
	group    singleflight.Group

	hits   int
	misses int
}

func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 2000
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[Key]entry),
	}
}

// MakeKey computes the (state, lead, hash) key from a raw utterance.
func MakeKey(stateID int, leadID, utterance string) Key {
	return Key{StateID: stateID, LeadID: leadID, Hash: hashNormalized(utterance)}
}

func hashNormalized(utterance string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(intent.Normalize(utterance)))
	return h.Sum32()
}

// Get returns the cached reply if present and unexpired.
func (c *Cache) Get(key Key) (reply string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		c.misses++
		return "", false
	}
	c.hits++
	return e.reply, true
}

// Set inserts or replaces a reply under key, evicting the oldest entry on
// overflow.
func (c *Cache) Set(key Key, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{reply: reply, expiresAt: now.Add(c.ttl), insertedAt: now}
}

func (c *Cache) evictOldestLocked() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}

// Stats reports cache hit/miss counters and current size.
type Stats struct {
	Hits    int
	Misses  int
	Size    int
	MaxSize int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries), MaxSize: c.maxSize}
}

// Resolve collapses concurrent lookups/fills for the same key into one
// upstream compute call, satisfying the "at most one provider call per key"
// invariant when many turns race on an uncached key simultaneously.
func (c *Cache) Resolve(key Key, compute func() (string, error)) (reply string, hit bool, err error) {
	if reply, ok := c.Get(key); ok {
		return reply, true, nil
	}
	groupKey := fnvKeyString(key)
	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		if reply, ok := c.Get(key); ok {
			return reply, nil
		}
		reply, err := compute()
		if err != nil {
			return "", err
		}
		c.Set(key, reply)
		return reply, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

func fnvKeyString(k Key) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.LeadID))
	buf := [12]byte{}
	buf[0] = byte(k.StateID)
	buf[1] = byte(k.Hash)
	buf[2] = byte(k.Hash >> 8)
	buf[3] = byte(k.Hash >> 16)
	buf[4] = byte(k.Hash >> 24)
	_, _ = h.Write(buf[:])
	return string(h.Sum(nil))
}
